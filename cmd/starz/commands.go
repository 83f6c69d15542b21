package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/config"
	"github.com/kalambet/starz/internal/favorites"
)

// conversation mirrors the API's conversation object.
type conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// --- favorites ---

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "List and manage favorite messages",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list <conversation>",
	Short: "Show one page of favorites, highest position first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		l, err := listFavorites(cmd.Context(), client, args[0], page, pageSize)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, l)
		}
		printListing(os.Stdout, l)
		return nil
	},
}

func listFavorites(ctx context.Context, c *apiClient, cid string, page, pageSize int) (chat.Listing, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var l chat.Listing
	resp, err := c.get(ctx, conversationPath(cid, "favorites")+"?"+q.Encode())
	if err != nil {
		return l, err
	}
	return l, decodeJSON(resp, &l)
}

func printListing(w io.Writer, l chat.Listing) {
	title := l.Title
	if title == "" {
		title = l.ConversationID
	}
	fmt.Fprintf(w, "%s - %d favorites\n", styleBold.paint(title), l.TotalCount)
	if l.TotalCount == 0 {
		fmt.Fprintln(w, "No favorites yet.")
		return
	}
	for _, e := range l.Items {
		where := "#" + e.MessageRef
		if e.Position != nil && strconv.Itoa(*e.Position) != e.MessageRef {
			where = fmt.Sprintf("#%d (%s)", *e.Position, e.MessageRef)
		}
		line := fmt.Sprintf("%s  %s  %s", shortID(e.ID), where, e.Sender)
		if e.Deleted {
			line += "  " + styleRed.paint("[message deleted]")
		}
		fmt.Fprintln(w, line)
		if e.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", e.Snippet)
		}
		if e.Note != "" {
			fmt.Fprintf(w, "    note: %s\n", e.Note)
		}
	}
	fmt.Fprintf(w, "page %d/%d\n", l.Page, l.TotalPages)
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <conversation> <message-ref>",
	Short: "Favorite a message by position or message ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), conversationPath(args[0], "favorites"), map[string]string{"message_ref": args[1]})
		if err != nil {
			return err
		}
		var rec favorites.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		printSuccess("Favorite %s for message %s", rec.ID, rec.MessageRef)
		return nil
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <conversation> <message-ref>",
	Short: "Favorite a message, or unfavorite it if it already is one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), conversationPath(args[0], "favorites", "toggle"), map[string]string{"message_ref": args[1]})
		if err != nil {
			return err
		}
		var res chat.ToggleResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if res.Added {
			printSuccess("Added favorite %s for message %s", res.Record.ID, res.Record.MessageRef)
		} else {
			printSuccess("Removed favorite %s for message %s", res.Record.ID, res.Record.MessageRef)
		}
		return nil
	},
}

var favoritesNoteCmd = &cobra.Command{
	Use:   "note <conversation> <favorite-id> [note...]",
	Short: "Replace a favorite's note; no note clears it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		note := strings.Join(args[2:], " ")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), conversationPath(args[0], "favorites", args[1]), map[string]string{"note": note})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		if note == "" {
			printSuccess("Cleared note of %s", args[1])
		} else {
			printSuccess("Updated note of %s", args[1])
		}
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <conversation> [favorite-id]",
	Short: "Remove a favorite by ID, or by message with --ref",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("ref")
		if (ref == "") == (len(args) == 1) {
			return fmt.Errorf("give either a favorite ID or --ref")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := conversationPath(args[0], "favorites") + "?message_ref=" + url.QueryEscape(ref)
		if ref == "" {
			path = conversationPath(args[0], "favorites", args[1])
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Favorite removed")
		return nil
	},
}

var favoritesPreviewCmd = &cobra.Command{
	Use:   "preview <conversation> <favorite-id>",
	Short: "Show a favorited message with its neighbours",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), conversationPath(args[0], "favorites", args[1], "context"))
		if err != nil {
			return err
		}
		var msgs []chat.ContextMessage
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		printContext(os.Stdout, msgs)
		return nil
	},
}

func printContext(w io.Writer, msgs []chat.ContextMessage) {
	for _, m := range msgs {
		label := fmt.Sprintf("#%d %s", m.Position, m.Sender)
		if m.Target {
			fmt.Fprintf(w, "%s %s\n", star(true), styleBold.paint(label))
		} else {
			fmt.Fprintf(w, "  %s\n", label)
		}
		fmt.Fprintf(w, "    %s\n", truncate(favorites.Snippet(m.Text, 0), 300))
	}
}

var favoritesPruneCmd = &cobra.Command{
	Use:   "prune <conversation>",
	Short: "Find favorites whose message is gone; --confirm removes them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), conversationPath(args[0], "favorites", "prune"), map[string]bool{"confirm": confirm})
		if err != nil {
			return err
		}
		var res chat.PruneResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printPrune(os.Stdout, res)
		return nil
	},
}

func printPrune(w io.Writer, res chat.PruneResult) {
	if len(res.Invalid) == 0 {
		printSuccess("No invalid favorites")
		return
	}
	for _, r := range res.Invalid {
		fmt.Fprintf(w, "  %s  #%s  %s\n", shortID(r.ID), r.MessageRef, r.Sender)
	}
	if res.Applied {
		printSuccess("Removed %d invalid favorites, %d kept", len(res.Invalid), res.Kept)
		return
	}
	printWarning("%d favorites point at missing messages. Use --confirm to remove them.", len(res.Invalid))
}

func init() {
	favoritesListCmd.Flags().Int("page", 1, "page number")
	favoritesListCmd.Flags().Int("page-size", 0, "items per page (default from config)")
	favoritesListCmd.Flags().Bool("json", false, "print the raw listing")
	favoritesRemoveCmd.Flags().String("ref", "", "remove the favorite of this message reference")
	favoritesPruneCmd.Flags().Bool("confirm", false, "remove the invalid favorites")

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesToggleCmd)
	favoritesCmd.AddCommand(favoritesNoteCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	favoritesCmd.AddCommand(favoritesPreviewCmd)
	favoritesCmd.AddCommand(favoritesPruneCmd)
}

// --- messages ---

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect and change a conversation log",
}

func messageInput(cmd *cobra.Command, text string) chat.MessageInput {
	sender, _ := cmd.Flags().GetString("sender")
	user, _ := cmd.Flags().GetBool("user")
	system, _ := cmd.Flags().GetBool("system")
	return chat.MessageInput{Sender: sender, IsUser: user, IsSystem: system, Text: text}
}

var messagesListCmd = &cobra.Command{
	Use:   "list <conversation>",
	Short: "List the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), conversationPath(args[0], "messages"))
		if err != nil {
			return err
		}
		var msgs []chat.MessageView
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			printMessage(os.Stdout, m)
		}
		return nil
	},
}

func printMessage(w io.Writer, m chat.MessageView) {
	fmt.Fprintf(w, "%s %s %s: %s\n", star(m.Favorited), position(m.Position), m.Sender, truncate(favorites.Snippet(m.Text, 0), 120))
}

var messagesAppendCmd = &cobra.Command{
	Use:   "append <conversation> <text...>",
	Short: "Append a message, or insert it with --position",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := struct {
			chat.MessageInput
			Position *int `json:"position,omitempty"`
		}{MessageInput: messageInput(cmd, strings.Join(args[1:], " "))}
		if cmd.Flags().Changed("position") {
			p, _ := cmd.Flags().GetInt("position")
			body.Position = &p
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), conversationPath(args[0], "messages"), body)
		if err != nil {
			return err
		}
		var m chat.MessageView
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}
		printSuccess("Stored message #%d (%s)", m.Position, m.ID)
		return nil
	},
}

var messagesPrependCmd = &cobra.Command{
	Use:   "prepend <conversation> <text> [text...]",
	Short: "Load older messages at the top of the log, one per argument",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := make([]chat.MessageInput, 0, len(args)-1)
		for _, text := range args[1:] {
			in = append(in, messageInput(cmd, text))
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), conversationPath(args[0], "messages", "prepend"), map[string]any{"messages": in})
		if err != nil {
			return err
		}
		var msgs []chat.MessageView
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		printSuccess("Prepended %d messages", len(msgs))
		return nil
	},
}

var messagesEditCmd = &cobra.Command{
	Use:   "edit <conversation> <position> <text...>",
	Short: "Replace the text of a message",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("position must be an integer: %w", err)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), conversationPath(args[0], "messages", args[1]), map[string]string{"text": strings.Join(args[2:], " ")})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Edited message #%s", args[1])
		return nil
	},
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete <conversation> <position>",
	Short: "Delete a message; favorites of later messages shift down",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("position must be an integer: %w", err)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), conversationPath(args[0], "messages", args[1]))
		if err != nil {
			return err
		}
		var res struct {
			Removed []favorites.Record `json:"removed_favorites"`
		}
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Deleted message #%s", args[1])
		for _, r := range res.Removed {
			printStep("Dropped favorite %s", r.ID)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{messagesAppendCmd, messagesPrependCmd} {
		c.Flags().String("sender", "", "display name of the author")
		c.Flags().Bool("user", false, "message was written by the user")
		c.Flags().Bool("system", false, "message is a system message")
	}
	messagesAppendCmd.Flags().Int("position", 0, "insert at this position instead of appending")

	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesAppendCmd)
	messagesCmd.AddCommand(messagesPrependCmd)
	messagesCmd.AddCommand(messagesEditCmd)
	messagesCmd.AddCommand(messagesDeleteCmd)
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Create and list conversations",
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create <title...>",
	Short: "Create an empty conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/conversations", map[string]string{"title": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var c conversation
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printSuccess("Created conversation %s", c.ID)
		return nil
	},
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/conversations?limit=%d", limit))
		if err != nil {
			return err
		}
		var convs []conversation
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}
		for _, c := range convs {
			fmt.Printf("%s  %s  %s\n", styleCyan.paint(c.ID), c.UpdatedAt, c.Title)
		}
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsCmd.AddCommand(conversationsCreateCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", styleBold.paint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
