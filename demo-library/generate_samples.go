// Command generate_samples writes a messy preset library for trying iconic:
// nested folders, copy-suffixed and architecture-suffixed duplicates, side
// files with and without a main file, and unrelated clutter.
//
//	go run ./demo-library [target-dir]
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

type sample struct {
	path    string
	content string
	art     color.RGBA // zero means no image side file
	info    bool
	age     time.Duration
}

var samples = []sample{
	{path: "Downloads/Serum.fst", content: "serum preset", art: color.RGBA{40, 90, 200, 255}, info: true, age: 48 * time.Hour},
	{path: "Downloads/old/Serum (2).fst", content: "serum preset", age: 72 * time.Hour},
	{path: "Backup/Serum_3.fst", content: "serum preset", art: color.RGBA{40, 90, 200, 255}, age: 24 * time.Hour},
	{path: "Diva x64.fst", content: "diva preset v1", art: color.RGBA{200, 60, 60, 255}},
	{path: "VST3/Diva.fst", content: "diva preset v2", age: time.Hour},
	{path: "FabFilter Pro-Q 3.fst", content: "eq", info: true},
	{path: "Valhalla VintageVerb.fst", content: "reverb", art: color.RGBA{90, 160, 110, 255}},
	{path: "Effects/Delay/EchoBoy.fst", content: "delay"},
	{path: "Effects/OTT.fst", content: "ott"},
	{path: "Kontakt 7 copy.fst", content: "kontakt", info: true},
	{path: "Keys/Keyscape.fst", content: "keyscape", art: color.RGBA{230, 200, 90, 255}},
	{path: "Empty.fst", content: ""},
}

// Files no bundle claims.
var clutter = map[string]string{
	"readme.txt":             "install notes",
	"Downloads/Orphan.png":   "",
	"Downloads/Orphan.nfo":   "no main file",
	"Effects/Delay/desc.doc": "delay notes",
}

// writeArt draws a flat cover with a centered disc, the same picture for
// equal colours so the duplicate resolver and image repeat detection have
// something to find.
func writeArt(path string, c color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			dx, dy := x-64, y-64
			if dx*dx+dy*dy < 40*40 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, c)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func generate(root string, now time.Time) error {
	for _, s := range samples {
		mainFile := filepath.Join(root, filepath.FromSlash(s.path))
		if err := writeFile(mainFile, s.content); err != nil {
			return err
		}
		mod := now.Add(-s.age)
		if err := os.Chtimes(mainFile, mod, mod); err != nil {
			return err
		}
		base := mainFile[:len(mainFile)-len(filepath.Ext(mainFile))]
		if s.art != (color.RGBA{}) {
			if err := writeArt(base+".png", s.art); err != nil {
				return err
			}
		}
		if s.info {
			if err := writeFile(base+".nfo", "Preset info for "+filepath.Base(base)); err != nil {
				return err
			}
		}
	}
	for p, content := range clutter {
		if err := writeFile(filepath.Join(root, filepath.FromSlash(p)), content); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	root := "sample-library"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	if err := generate(root, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("Created %d bundles and %d unrelated files in %s\n", len(samples), len(clutter), root)
}
