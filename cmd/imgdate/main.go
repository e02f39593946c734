package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sunshineplan/imgdate"
	"github.com/sunshineplan/progressbar"
	"github.com/sunshineplan/utils/log"
	"github.com/vharitonsky/iniflags"
	"golang.org/x/term"
)

var (
	dir             = flag.String("dir", "", "")
	export          = flag.String("export", "", "")
	force           = flag.Bool("force", false, "")
	quality         = flag.Int("quality", 75, "")
	width           = flag.Int("width", imgdate.DefaultPreviewWidth, "")
	height          = flag.Int("height", imgdate.DefaultPreviewHeight, "")
	file            = flag.String("file", "", "")
	date            = flag.String("date", "", "")
	autoOrientation = flag.Bool("auto-orientation", true, "")
	quiet           = flag.Bool("quiet", false, "")
	debug           = flag.Bool("debug", false, "")

	format = imgdate.PNG
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	fmt.Println(`
  --dir
		image folder (default: Pictures folder in home directory)
  --export
		write normalized previews of all images into this directory
  --force
		force overwrite exported previews (default: false)
  --format
		preview format (jpg, jpeg, png, gif, tif, tiff and bmp are supported, default: png)
  --quality
		set jpeg quality (range 1-100, default: 75)
  --width, height
		preview box (default: 1800x1300), images are never enlarged
  --file
		image name inside dir used with --date
  --date
		set date of --file, e.g. 'Nov 24', 'yesterday', '2 months ago', 'Christmas 2023'
  --auto-orientation
		apply exif orientation (default: true)
  --quiet
		suppress status output (default: false)
  --debug
		print every processed file and debug logs (default: false)

Without --export and --date, images are browsed interactively:
  n or enter  next image
  p           previous image
  d <text>    set date of current image
  q           quit`)
}

func main() {
	self, err := os.Executable()
	if err != nil {
		log.Error("Failed to get self path", "error", err)
		os.Exit(1)
	}

	flag.Usage = usage
	flag.TextVar(&format, "format", imgdate.PNG, "")
	iniflags.SetConfigFile(filepath.Join(filepath.Dir(self), "config.ini"))
	iniflags.SetAllowMissingConfigFile(true)
	iniflags.Parse()
	setLogLevel(*debug)

	if *dir == "" {
		*dir = imgdate.DefaultDir()
	}

	opts := imgdate.NewOptions()
	opts.SetSize(*width, *height)
	opts.Format = imgdate.FormatOption{Format: format, EncodeOption: []imgdate.EncodeOption{imgdate.Quality(*quality)}}

	switch {
	case *date != "":
		err = setDate(filepath.Join(*dir, *file), *date)
	case *export != "":
		err = exportAll(&opts, *dir, *export)
	default:
		err = browse(&opts, os.Stdin, os.Stdout)
	}
	if err != nil {
		log.Error("Failed", "error", err)
		os.Exit(1)
	}
}

func setLogLevel(debug bool) {
	if debug {
		log.SetLevel(slog.LevelDebug)
	} else {
		log.SetLevel(slog.LevelInfo)
	}
}

func setDate(path, text string) error {
	if *file == "" {
		return errors.New("--file is required with --date")
	}
	t, err := imgdate.NewDateParser().Parse(text, now())
	if err != nil {
		return err
	}
	res, err := imgdate.WriteDate(path, t)
	if err != nil {
		return err
	}
	if !*quiet {
		fmt.Printf("%s - '%s' → %s\n", filepath.Base(path), strings.TrimSpace(text), res.Message())
	}
	return nil
}

func exportAll(opts *imgdate.Options, root, dst string) error {
	files, err := imgdate.ListImages(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", imgdate.ErrNoImages, root)
	}
	if !*quiet {
		fmt.Println("Total images:", len(files))
	}

	var failed int
	pb := progressbar.New(len(files))
	pb.Start()
	for _, name := range files {
		output := opts.ConvertExt(filepath.Join(dst, name))
		switch err := convert(opts, filepath.Join(root, name), output, *force); {
		case err == nil:
			log.Debug("Exported", "image", name, "output", output)
		case errors.Is(err, errSkip):
			log.Debug("Skip", "output", output)
		default:
			failed++
		}
		pb.Add(1)
	}
	pb.Wait()
	if failed > 0 {
		log.Warn("Some images could not be exported", "failed", failed, "total", len(files))
	}
	return nil
}

func browse(opts *imgdate.Options, r io.Reader, w io.Writer) error {
	s, err := imgdate.NewSession(*dir,
		imgdate.WithOptions(*opts),
		imgdate.WithDecodeOptions(imgdate.AutoOrientation(*autoOrientation)),
		imgdate.WithClock(now),
	)
	if err != nil {
		return err
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		// without a terminal print every status line
		printStatus(w, s.Current())
		for {
			v, ok := s.Next()
			if !ok {
				return nil
			}
			printStatus(w, v)
		}
	}

	printStatus(w, s.Current())
	scanner := bufio.NewScanner(r)
	for fmt.Fprint(w, "> "); scanner.Scan(); fmt.Fprint(w, "> ") {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch strings.ToLower(cmd) {
		case "", "n", "next":
			if v, ok := s.Next(); ok {
				printStatus(w, v)
			}
		case "p", "prev":
			if v, ok := s.Prev(); ok {
				printStatus(w, v)
			}
		case "d", "date":
			msg, err := s.SetDate(arg)
			if err != nil {
				fmt.Fprintln(w, "Error:", err)
				continue
			}
			fmt.Fprintln(w, truncate(msg))
		case "q", "quit", "exit":
			return nil
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
	return scanner.Err()
}

func printStatus(w io.Writer, v *imgdate.View) {
	if *quiet {
		return
	}
	fmt.Fprintln(w, truncate(v.Status()))
}

// truncate shortens s to the terminal width.
func truncate(s string) string {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
