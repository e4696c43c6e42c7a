// Command lyrics-fetch scrapes a single Genius song page from the terminal.
// Handy for checking the extractor against a live page without running the
// bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/obadiaz/lyricsbot/internal/logger"
	"github.com/obadiaz/lyricsbot/internal/lyrics"
)

func main() {
	var outputFile string

	flag.StringVar(&outputFile, "output", "", "write lyrics to file instead of stdout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <URL>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "Example: %s https://genius.com/John-lennon-imagine-lyrics\n", os.Args[0])
		os.Exit(1)
	}

	logger.Init("warn", "console")
	defer logger.Sync()

	service := lyrics.NewService(nil)
	text, err := service.Lyrics(context.Background(), args[0])
	if err != nil {
		log.Fatalf("error extracting lyrics: %v", err)
	}

	if outputFile == "" {
		fmt.Println(text)
		return
	}
	if err := os.WriteFile(outputFile, []byte(text), 0644); err != nil {
		log.Fatalf("error saving file: %v", err)
	}
	fmt.Printf("Lyrics saved to: %s\n", outputFile)
}
