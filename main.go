package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"muse/cmd"
	"muse/config"
	"muse/services"

	"github.com/schollz/progressbar/v3"
)

func main() {
	var (
		importDir string
		label     string
		reindex   string
		server    bool
		port      int
	)

	flag.StringVar(&importDir, "import", "", "Directory to import into the library")
	flag.StringVar(&label, "label", "", "Source label for the imported folder (defaults to the directory name)")
	flag.StringVar(&reindex, "reindex", "", "Name of a previously imported folder to reindex")
	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.Parse()

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(port)
		return
	}

	if importDir == "" && reindex == "" {
		flag.Usage()
		return
	}

	if importDir != "" && reindex != "" {
		log.Fatalf("You can run only one of `import` and `reindex` at a time.")
	}

	storage, err := services.NewFileStorage(config.GetDataDir())
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	library := services.NewLibraryService(storage)
	folders := services.NewFolderHistory(storage)
	extractor := services.NewMetadataExtractor()
	grouper := services.NewAlbumGrouper(extractor)
	lookup := services.NewMusicBrainzLookup(config.GetMusicBrainzEndpoint(), config.GetCoverArtEndpoint())
	backfill := services.NewCoverBackfill(lookup, nil)
	orchestrator := services.NewImportOrchestrator(extractor, grouper, backfill, library, folders, nil)

	var bar *progressbar.ProgressBar
	orchestrator.SetProgressFunc(func(done, total int, filename string) {
		if bar == nil {
			bar = progressbar.Default(int64(total))
		}
		bar.Add(1)
	})

	if importDir != "" {
		albums, err := orchestrator.ImportDirectory(context.Background(), importDir, label)
		if err != nil {
			if errors.Is(err, services.ErrNoAudioFiles) {
				fmt.Println("No audio files found in", importDir)
				return
			}
			log.Fatalf("Import failed: %v", err)
		}

		fmt.Printf("\nImported %d albums:\n", len(albums))
		for _, album := range albums {
			fmt.Printf("  %s - %s (%d tracks)\n", album.Artist, album.Title, len(album.Tracks))
		}
	} else {
		albums, err := orchestrator.ReindexFolder(context.Background(), reindex)
		if err != nil {
			if errors.Is(err, services.ErrNoFolderHandle) {
				log.Fatalf("Folder %q has no stored path, re-import it with -import", reindex)
			}
			log.Fatalf("Reindex failed: %v", err)
		}

		fmt.Printf("\nLibrary now holds %d albums after reindexing %s\n", len(albums), reindex)
	}

	// Cover backfill keeps running after the import returns
	orchestrator.WaitForBackfill()
}
