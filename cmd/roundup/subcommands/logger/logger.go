package logger

import (
	"fmt"
	"io"
	"log"
)

// Null discards everything. For tests.
func Null() *log.Logger {
	return log.New(io.Discard, "", log.LstdFlags)
}

// Default is the standard logger prefixed with the command name, like "[roundup] ".
func Default(command string) *log.Logger {
	l := log.Default()
	l.SetPrefix(fmt.Sprintf("[%s] ", command))
	return l
}
