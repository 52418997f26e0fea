package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/util"
)

var (
	playListing  string
	playLanguage string
	playSource   string
	playSeason   string
	playEpisode  int
	playPick     bool
	playWaitWarm time.Duration
	playJSON     bool

	playInteractive bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resolve an episode of a listing, falling back to other sources",
	Long: `Resolve an episode of a listing. The fastest source is chosen per
episode, a failed extraction is retried once on the best alternative source,
and the neighbouring episodes are resolved in the background.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := readListing(playListing)
		if err != nil {
			return err
		}
		language, err := pickLanguage(l, playLanguage)
		if err != nil {
			return err
		}
		season := playSeason
		if season == "" {
			season = seasonIDFor(playListing)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		nv := rt.navigator
		mirror, err := nv.Load(season, l, language)
		if err != nil {
			return err
		}
		util.Debug("Recommended source", "mirror", mirror)

		switch {
		case playSource != "":
			mirror = playSource
		case playPick:
			if mirror, err = pickMirror(nv.Analyses()); err != nil {
				return err
			}
		}
		if current := currentMirror(nv); mirror != current {
			if err := nv.SwitchSource(mirror); err != nil {
				return err
			}
		}

		index := playEpisode - 1
		if playEpisode == 0 {
			total := len(l.Episodes(language, mirror))
			if index, err = pickEpisode(total); err != nil {
				return err
			}
		}

		for {
			pb, err := resolveEpisode(ctx, cmd, nv, index)
			if err != nil {
				return err
			}
			if !playInteractive || playJSON {
				waitWarm(ctx, pb)
				return nil
			}

			total := len(l.Episodes(language, currentMirror(nv)))
			switch askNext(index, total) {
			case actionNext:
				index++
			case actionPrevious:
				index--
			case actionSource:
				mirror, err := pickMirror(nv.Analyses())
				if err != nil {
					return err
				}
				if err := nv.SwitchSource(mirror); err != nil {
					return err
				}
			default:
				return nil
			}
		}
	},
}

// resolveEpisode plays index and prints the outcome.
func resolveEpisode(ctx context.Context, cmd *cobra.Command, nv *playback.Navigator, index int) (playback.Playback, error) {
	var (
		pb  playback.Playback
		err error
	)
	withSpinner(fmt.Sprintf("Resolving episode %d...", index+1), func() {
		pb, err = nv.Play(ctx, index)
	})
	if err != nil {
		return pb, err
	}

	if playJSON {
		return pb, writeJSON(cmd.OutOrStdout(), pb)
	}
	renderPlayback(cmd.OutOrStdout(), pb)
	return pb, nil
}

func waitWarm(ctx context.Context, pb playback.Playback) {
	if playWaitWarm <= 0 {
		return
	}
	select {
	case <-pb.Warmed:
		util.Debug("Adjacent episodes warmed")
	case <-time.After(playWaitWarm):
		util.Debug("Stopped waiting for adjacent episodes")
	case <-ctx.Done():
	}
}

func currentMirror(nv *playback.Navigator) string {
	_, m := nv.Current()
	return m
}

func init() {
	f := playCmd.Flags()
	f.StringVarP(&playListing, "listing", "l", "", "episodes JSON file: language → source → embed URLs")
	f.StringVar(&playLanguage, "language", "", "listing language, asked when omitted")
	f.StringVarP(&playSource, "source", "s", "", "source to use instead of the recommended one")
	f.BoolVar(&playPick, "pick-source", false, "choose the source interactively")
	f.StringVar(&playSeason, "season", "", "season id for the cache (default: listing file name)")
	f.IntVarP(&playEpisode, "episode", "e", 0, "episode number starting at 1, asked when omitted")
	f.DurationVar(&playWaitWarm, "wait-warm", 0, "wait this long for the neighbouring episodes to be cached")
	f.BoolVar(&playJSON, "json", false, "print the result as JSON")
	f.BoolVarP(&playInteractive, "interactive", "i", false, "keep navigating episodes after the first one")
	rootCmd.AddCommand(playCmd)
}
