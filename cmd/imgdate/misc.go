package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sunshineplan/imgdate"
	"github.com/sunshineplan/utils/log"
)

var now = time.Now

var errSkip = errors.New("skip")

func convert(task *imgdate.Options, image, output string, force bool) (err error) {
	if _, err = os.Stat(output); err == nil {
		if !force {
			return errSkip
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Error("Failed to get FileInfo", "name", output, "error", err)
		return
	}
	path := filepath.Dir(output)
	if err = os.MkdirAll(path, 0755); err != nil {
		log.Error("Failed to create directory", "path", path, "error", err)
		return
	}
	src, err := imgdate.Open(image, imgdate.AutoOrientation(*autoOrientation))
	if err != nil {
		log.Error("Failed to open image", "image", image, "error", err)
		return
	}
	f, err := os.CreateTemp(path, "*.tmp")
	if err != nil {
		log.Error("Failed to create temporary file", "path", path, "error", err)
		return
	}
	defer os.Remove(f.Name())
	if err = task.Convert(f, src); err != nil {
		f.Close()
		log.Error("Failed to convert image", "image", image, "error", err)
		return
	}
	f.Close()
	if err = os.Rename(f.Name(), output); err != nil {
		log.Error("Failed to move file", "from", f.Name(), "to", output, "error", err)
	}
	return
}
