package main

import (
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/models"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Add or remove a tag on a pin",
}

var tagAddCmd = &cobra.Command{
	Use:     "add <cid> <tag>",
	Short:   "Add a tag to a pin",
	Example: `  pinsync tag add bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi ログ`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTagEdit(cmd, args, true)
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <cid> <tag>",
	Short: "Remove a tag from a pin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTagEdit(cmd, args, false)
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd, tagRmCmd)
}

// parseCID validates a content identifier argument.
func parseCID(s string) (string, error) {
	c, err := gocid.Decode(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid CID %q: %w", s, err)
	}
	return c.String(), nil
}

// findCID locates a pin by CID in the local set, refreshing once if the
// set does not know it yet.
func findCID(cmd *cobra.Command, arg string) (string, error) {
	cid, err := parseCID(arg)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{arg, cid} {
		if _, err := apiClient.Pins.Find(candidate); err == nil {
			return candidate, nil
		}
	}
	if _, err := apiClient.Refresh(cmd.Context()); err != nil {
		return "", err
	}
	for _, candidate := range []string{arg, cid} {
		if _, err := apiClient.Pins.Find(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrPinNotFound, arg)
}

func runTagEdit(cmd *cobra.Command, args []string, add bool) error {
	cid, err := findCID(cmd, args[0])
	if err != nil {
		return err
	}

	var item models.PinnedItem
	if add {
		item, err = apiClient.AddTag(cmd.Context(), cid, args[1])
	} else {
		item, err = apiClient.RemoveTag(cmd.Context(), cid, args[1])
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"cid":     item.CID,
			"tags":    item.Tags,
		})
		return nil
	}
	printSuccess("%s: [%s]", item.Label(), strings.Join(item.Tags, ", "))
	return nil
}
