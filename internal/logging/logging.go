package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "agent ", log.LstdFlags|log.LUTC)
}
