package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// NewIngestCommand creates the ingest command
func NewIngestCommand() *cobra.Command {
	var destination string
	var maxSizeMB int
	var allowed []string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Convert an image to WebP, store it and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Service.IngestAndArchive(commandContext(cmd), simplemedia.IngestRequest{
				Data:        data,
				FileName:    filepath.Base(args[0]),
				Destination: destination,
				Policy:      simplemedia.UploadPolicy{MaxSizeMB: maxSizeMB, AllowedMimePrefixes: allowed},
			})
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			if ok, err := printJSON(cmd, res); ok || err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Media ID: %s\n", res.MediaID)
			fmt.Fprintf(out, "Name: %s\n", res.Name)
			fmt.Fprintf(out, "URL: %s\n", res.URL)
			if res.ArchiveID != "" {
				fmt.Fprintf(out, "Archive ID: %s\n", res.ArchiveID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&destination, "destination", "d", "", "destination folder (required)")
	cmd.Flags().IntVar(&maxSizeMB, "max-size-mb", 10, "reject files larger than this, 0 for no limit")
	cmd.Flags().StringSliceVar(&allowed, "allow", []string{"image/"}, "allowed media type prefixes")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

// NewMediaCommand creates the media command group
func NewMediaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "List and delete media entries",
	}

	var destination string
	var descending bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List media entries by creation time",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.Service.ListMedia(commandContext(cmd), simplemedia.ListMediaRequest{
				Destination: destination,
				Descending:  descending,
			})
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if ok, err := printJSON(cmd, entries); ok || err != nil {
				return err
			}

			tw := newTable(cmd)
			fmt.Fprintln(tw, "ID\tDESTINATION\tSIZE\tCREATED\tURL")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Destination, e.Size, e.CreatedAt.Format(time.RFC3339), e.URL)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVarP(&destination, "destination", "d", "", "only entries of this destination")
	list.Flags().BoolVar(&descending, "desc", false, "newest first")

	var url string
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a media entry and its blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Service.DeleteMedia(commandContext(cmd), args[0], url); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	del.Flags().StringVar(&url, "url", "", "expected blob URL or object key of the entry")

	cmd.AddCommand(list, del)
	return cmd
}

// NewArchiveCommand creates the archive command group
func NewArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the image archive",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			images, err := rt.Service.ListArchive(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if ok, err := printJSON(cmd, images); ok || err != nil {
				return err
			}

			tw := newTable(cmd)
			fmt.Fprintln(tw, "ID\tCREATED\tURL")
			for _, img := range images {
				created := "-"
				if img.CreatedAt != nil {
					created = img.CreatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", img.ID, created, img.ImageURL)
			}
			return tw.Flush()
		},
	})
	return cmd
}

// NewPositionedCommand creates the positioned command group
func NewPositionedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positioned",
		Short: "Manage positioned collections",
	}

	list := &cobra.Command{
		Use:   "list <collection>",
		Short: "List a collection by position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.Service.ListPositioned(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			return printPositioned(cmd, entries)
		},
	}

	var redirect string
	insert := &cobra.Command{
		Use:   "insert <collection> <image-url> <position>",
		Short: "Insert an entry, shifting later entries on collision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("position must be an integer: %w", err)
			}
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := commandContext(cmd)
			err = rt.Service.InsertPositioned(ctx, args[0], simplemedia.PositionedEntry{
				ImageURL:       args[1],
				Position:       position,
				RedirectionURL: redirect,
			})
			if err != nil {
				return fmt.Errorf("insert failed: %w", err)
			}
			entries, err := rt.Service.ListPositioned(ctx, args[0])
			if err != nil {
				return err
			}
			return printPositioned(cmd, entries)
		},
	}
	insert.Flags().StringVar(&redirect, "redirect", "", "redirection URL")

	remove := &cobra.Command{
		Use:   "remove <collection> <image-url> <position>",
		Short: "Remove the entries with this image URL and position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("position must be an integer: %w", err)
			}
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			match := simplemedia.PositionedMatch{ImageURL: args[1], Position: position}
			if err := rt.Service.RemovePositioned(commandContext(cmd), args[0], match); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s at %d\n", args[1], position)
			return nil
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <collection> <entries.json>",
		Short: "Replace every position from a JSON array of entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read entries: %w", err)
			}
			var entries []simplemedia.PositionedEntry
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("invalid entries file: %w", err)
			}

			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := commandContext(cmd)
			if err := rt.Service.ReorderPositioned(ctx, args[0], entries); err != nil {
				return fmt.Errorf("reorder failed: %w", err)
			}
			entries, err = rt.Service.ListPositioned(ctx, args[0])
			if err != nil {
				return err
			}
			return printPositioned(cmd, entries)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate <collection>",
		Short: "Rewrite legacy entries in the current shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.Service.MigratePositioned(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("migrate failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d entries\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, insert, remove, reorder, migrate)
	return cmd
}

func printPositioned(cmd *cobra.Command, entries []simplemedia.PositionedEntry) error {
	if ok, err := printJSON(cmd, entries); ok || err != nil {
		return err
	}
	tw := newTable(cmd)
	fmt.Fprintln(tw, "POSITION\tIMAGE\tREDIRECT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Position, e.ImageURL, e.RedirectionURL)
	}
	return tw.Flush()
}

// NewCarouselCommand creates the carousel command group
func NewCarouselCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carousel",
		Short: "Manage screen carousels",
	}

	list := &cobra.Command{
		Use:   "list <name>",
		Short: "List a carousel in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.Service.ListCarousel(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if ok, err := printJSON(cmd, entries); ok || err != nil {
				return err
			}
			tw := newTable(cmd)
			fmt.Fprintln(tw, "INDEX\tSCREEN\tIMAGE")
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i, e.ScreenName, e.ImageURL)
			}
			return tw.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name> <image-url> <screen>",
		Short: "Append an entry to a carousel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.Service.AppendCarousel(commandContext(cmd), args[0], simplemedia.ScreenCarouselEntry{
				ImageURL:   args[1],
				ScreenName: args[2],
			})
			if err != nil {
				return fmt.Errorf("append failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appended %s to %s\n", args[1], args[0])
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <name> <index>",
		Short: "Remove the entry at a list index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Service.RemoveCarouselAt(commandContext(cmd), args[0], index); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed index %d from %s\n", index, args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

// NewReconcileCommand creates the reconcile command group
func NewReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and acknowledge the reconciliation queue (requires REDIS_URL)",
	}

	var limit int64
	list := &cobra.Command{
		Use:   "list",
		Short: "Show pending reconciliation events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Reconcile == nil {
				return fmt.Errorf("reconciliation queue is not configured, set REDIS_URL")
			}

			events, err := rt.Reconcile.Pending(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			if ok, err := printJSON(cmd, events); ok || err != nil {
				return err
			}
			tw := newTable(cmd)
			fmt.Fprintln(tw, "KIND\tOP\tMEDIA\tURL\tREASON")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Kind, e.Op, e.MediaID, e.URL, e.Reason)
			}
			return tw.Flush()
		},
	}
	list.Flags().Int64Var(&limit, "limit", 50, "maximum events to show")

	ack := &cobra.Command{
		Use:   "ack <count>",
		Short: "Drop the oldest count events after they have been handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("count must be an integer: %w", err)
			}
			rt, err := runtimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Reconcile == nil {
				return fmt.Errorf("reconciliation queue is not configured, set REDIS_URL")
			}

			if err := rt.Reconcile.Ack(commandContext(cmd), n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged %d events\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, ack)
	return cmd
}
