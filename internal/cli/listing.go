package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/util"
)

// readListing loads an episodes file: language → mirror → embed URLs.
func readListing(path string) (analyzer.Listing, error) {
	if path == "" {
		return nil, fmt.Errorf("--listing is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	var l analyzer.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", path, err)
	}
	if len(l) == 0 {
		return nil, fmt.Errorf("listing %s is empty", path)
	}
	return l, nil
}

// seasonIDFor derives a season id from the listing file name.
func seasonIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pickLanguage returns language when set, the only language when there is
// one, and asks otherwise.
func pickLanguage(l analyzer.Listing, language string) (string, error) {
	if language != "" {
		return language, nil
	}
	langs := l.Languages()
	if len(langs) == 1 {
		return langs[0], nil
	}
	idx, err := fuzzyfinder.Find(
		langs,
		func(i int) string { return langs[i] },
		fuzzyfinder.WithPromptString("Select language: "),
	)
	if err != nil {
		return "", fmt.Errorf("language selection cancelled: %w", err)
	}
	return langs[idx], nil
}

func pickMirror(a analyzer.Analyses) (string, error) {
	idx, err := fuzzyfinder.Find(
		a,
		func(i int) string { return a[i].Mirror },
		fuzzyfinder.WithPromptString("Select source: "),
		fuzzyfinder.WithPreviewWindow(func(i, _, _ int) string {
			if i < 0 || i >= len(a) {
				return ""
			}
			return describeMirror(a[i])
		}),
	)
	if err != nil {
		return "", fmt.Errorf("source selection cancelled: %w", err)
	}
	return a[idx].Mirror, nil
}

func pickEpisode(total int) (int, error) {
	items := make([]string, total)
	for i := range items {
		items[i] = fmt.Sprintf("Episode %d", i+1)
	}
	idx, err := fuzzyfinder.Find(
		items,
		func(i int) string { return items[i] },
		fuzzyfinder.WithPromptString("Select episode: "),
	)
	if err != nil {
		return 0, fmt.Errorf("episode selection cancelled: %w", err)
	}
	return idx, nil
}

// action is what the user wants after an episode resolved.
type action string

const (
	actionNext     action = "next"
	actionPrevious action = "previous"
	actionSource   action = "source"
	actionQuit     action = "quit"
)

// askNext offers the moves that make sense from episode index of total.
func askNext(index, total int) action {
	var options []huh.Option[action]
	if index+1 < total {
		options = append(options, huh.NewOption(fmt.Sprintf("Next episode (%d)", index+2), actionNext))
	}
	if index > 0 {
		options = append(options, huh.NewOption(fmt.Sprintf("Previous episode (%d)", index), actionPrevious))
	}
	options = append(options,
		huh.NewOption("Change source", actionSource),
		huh.NewOption("Quit", actionQuit),
	)

	choice := actionQuit
	menu := huh.NewSelect[action]().
		Title(fmt.Sprintf("Episode %d of %d", index+1, total)).
		Description("What next?").
		Options(options...).
		Value(&choice)

	if err := menu.Run(); err != nil {
		util.Debug("Navigation menu closed", "error", err)
		return actionQuit
	}
	return choice
}
