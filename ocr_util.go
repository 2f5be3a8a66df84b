package ocrsweep

import (
	"bytes"
	"image"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

func saveBytesToFileName(bytes []byte, tmpFileName string) error {
	return ioutil.WriteFile(tmpFileName, bytes, 0600)
}

// saveImageToFileName encodes img as PNG. *image.Paletted with a two colour
// palette ends up as a 1-bit PNG, which keeps binarized pages small.
func saveImageToFileName(img image.Image, fileName string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return errors.Wrap(err, "could not encode image as png")
	}
	return saveBytesToFileName(buf.Bytes(), fileName)
}

// createTempFileName generating a file name within of dir (os.TempDir when dir is empty).
// If fileName is empty string the file name will be generated in ksuid format.
func createTempFileName(dir string, fileName string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	if fileName == "" {
		ksuidRaw, err := ksuid.NewRandom()
		if err != nil {
			return "", errors.Wrap(err, "could not generate temp file name")
		}
		fileName = ksuidRaw.String()
	}

	return filepath.Join(dir, fileName), nil
}

// removeFile is used in defers where a failed clean up is worth a warning only
func removeFile(name string, component string) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("component", component).Msg(name + " could not be removed")
	}
}

func readFirstBytes(filePath string, nBytesToRead uint) ([]byte, error) {

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buffer := make([]byte, nBytesToRead)
	n, err := file.Read(buffer)
	if err != nil {
		return nil, err
	}
	return buffer[:n], nil
}

// detect file type by its magic bytes
func detectFileType(buffer []byte) string {
	fileType := ""
	if len(buffer) > 3 &&
		buffer[0] == 0x25 && buffer[1] == 0x50 &&
		buffer[2] == 0x44 && buffer[3] == 0x46 {
		fileType = strings.ToUpper("PDF")
	} else if len(buffer) > 3 &&
		((buffer[0] == 0x49 && buffer[1] == 0x49 && buffer[2] == 0x2A && buffer[3] == 0x0) ||
			(buffer[0] == 0x4D && buffer[1] == 0x4D && buffer[2] == 0x0 && buffer[3] == 0x2A)) {
		fileType = strings.ToUpper("TIFF")
	} else {
		fileType = strings.ToUpper("UNKNOWN")
	}
	log.Debug().Str("component", "OCR_DETECTFILETYPE").Str("file_type", fileType).Msg("checked file type")
	return fileType
}

// timeTrack used to measure time of selected operations
func timeTrack(start time.Time, operation string, message string, runID string) {
	elapsed := time.Since(start)
	log.Info().Str("component", "SWEEP").Dur(operation, elapsed).
		Str("run_id", runID).Msg(message)
}
