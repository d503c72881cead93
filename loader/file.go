package loader

import (
	"fmt"
	"io"
	"os"
)

// IOError reports a failure to read an input file.
type IOError struct {
	Msg string
}

func (e *IOError) Error() string {
	return e.Msg
}

// MaxFileSize is the largest input file ReadBinaryFile accepts.
const MaxFileSize = 0x1000000

// ReadBinaryFile slurps a file into a byte buffer. Files larger than
// MaxFileSize and empty files are rejected.
func ReadBinaryFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, &IOError{Msg: fmt.Sprintf("could not open file '%s'", name)}
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, &IOError{Msg: fmt.Sprintf("could not read file '%s'", name)}
	}
	if len(data) > MaxFileSize {
		return nil, &IOError{Msg: fmt.Sprintf("file '%s' too large", name)}
	}
	if len(data) == 0 {
		return nil, &IOError{Msg: fmt.Sprintf("file '%s' is empty or could not be read", name)}
	}
	return data, nil
}
