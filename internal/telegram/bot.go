package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/hunterwarburton/agentgo/internal/auth"
	"github.com/hunterwarburton/agentgo/internal/history"
	"github.com/hunterwarburton/agentgo/internal/imageutils"
	"github.com/hunterwarburton/agentgo/internal/ingest"
	"github.com/hunterwarburton/agentgo/internal/logger"
	"github.com/hunterwarburton/agentgo/internal/query"
)

const (
	maxPhotoBytes       = 10 * 1024 * 1024
	jpegReEncodeQuality = 75
	historyLimit        = 5
	defaultWorkers      = 4
)

// maxMessageLen is Telegram's text limit, counted in UTF-16 units.
const maxMessageLen = 4096

// Answerer answers a question against a chat's sources.
type Answerer interface {
	Answer(ctx context.Context, req query.Request) (*query.Response, error)
}

// Uploader ingests uploaded files.
type Uploader interface {
	UploadDocuments(ctx context.Context, req ingest.UploadRequest) ([]ingest.FileResult, error)
	UploadTable(ctx context.Context, f ingest.File) (string, error)
	Purge(ctx context.Context) error
}

// Catalog lists what can be queried.
type Catalog interface {
	Tables() ([]string, error)
	Documents(ctx context.Context, db string) ([]string, error)
}

// HistoryReader returns recent answered queries.
type HistoryReader interface {
	Recent(ctx context.Context, user string, limit int) ([]history.Entry, error)
}

// PolicyService defines the interface for checking user permissions.
type PolicyService interface {
	IsAllowed(userID int64) bool
	IsActionAllowed(userID int64, action auth.Action) bool
}

// Deps are the bot's collaborators. History is optional.
type Deps struct {
	Answerer  Answerer
	Uploader  Uploader
	Catalog   Catalog
	History   HistoryReader
	Policy    PolicyService
	DefaultDB string
	TempDir   string
	Workers   int
}

// Bot represents a Telegram bot.
type Bot struct {
	bot        *bot.Bot
	deps       Deps
	sessions   *SessionStore
	httpClient *http.Client
}

// NewBot creates a new bot instance.
func NewBot(token string, deps Deps) (*Bot, error) {
	b := &Bot{
		deps:       deps,
		sessions:   NewSessionStore(deps.DefaultDB),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	botAPI, err := bot.New(token,
		bot.WithDefaultHandler(b.handleUpdate),
		bot.WithWorkers(workers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	b.bot = botAPI
	return b, nil
}

// Start runs the long-polling loop until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}
	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.deps.Policy.IsAllowed(userID) {
		logger.TelegramWarn("Chat[%d] User[%d]: Rejected message from user not on the allow list.", chatID, userID)
		b.reply(ctx, chatID, "Sorry, you are not allowed to use this bot.")
		return
	}

	switch {
	case strings.HasPrefix(message.Text, "/"):
		b.handleCommand(ctx, message)
	case message.Document != nil:
		b.handleDocument(ctx, message)
	case message.Text != "":
		b.handleTextMessage(ctx, message)
	default:
		logger.TelegramInfo("Chat[%d] User[%d]: Ignored unhandled message type.", chatID, userID)
	}
}

const helpText = `Send a question to query the active sources.
Upload a .csv or .xlsx file to make it the active table.
Upload a .docx, .pdf, .txt or .md file to index it as the active document.

Commands:
/sources - List tables and documents
/table <name> - Select a table
/doc <name> - Select a document
/reset - Clear the selected sources
/history - Show your recent questions
/purge - Delete all tables and documents (admin)
/help - Show this help message`

func (b *Bot) handleCommand(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	command, arg := parseCommand(message.Text)
	logger.TelegramInfo("Chat[%d] User[%d]: Received command: /%s", chatID, userID, command)

	switch command {
	case "start":
		b.sessions.Reset(chatID)
		b.reply(ctx, chatID, "👋 Hello! Upload a table or a document, then ask me about it.\n\n"+helpText)

	case "help":
		b.reply(ctx, chatID, helpText)

	case "sources":
		b.reply(ctx, chatID, b.describeSources(ctx, chatID))

	case "table":
		if arg == "" {
			b.reply(ctx, chatID, "Usage: /table <name>")
			return
		}
		sess := b.sessions.Update(chatID, func(s *Session) { s.Table = arg })
		b.reply(ctx, chatID, fmt.Sprintf("✅ Active table: %s", sess.Table))

	case "doc":
		if arg == "" {
			b.reply(ctx, chatID, "Usage: /doc <name>")
			return
		}
		sess := b.sessions.Update(chatID, func(s *Session) { s.Document = arg })
		b.reply(ctx, chatID, fmt.Sprintf("✅ Active document: %s", sess.Document))

	case "reset":
		b.sessions.Reset(chatID)
		logger.TelegramInfo("Chat[%d]: User reset active sources.", chatID)
		b.reply(ctx, chatID, "✅ Active sources cleared.")

	case "history":
		b.reply(ctx, chatID, b.describeHistory(ctx, userID))

	case "purge":
		if !b.deps.Policy.IsActionAllowed(userID, auth.ActionPurge) {
			b.reply(ctx, chatID, "Only admins can purge data.")
			return
		}
		if err := b.deps.Uploader.Purge(ctx); err != nil {
			logger.TelegramError("Chat[%d]: Purge failed: %v", chatID, err)
			b.reply(ctx, chatID, "Sorry, purging failed: "+err.Error())
			return
		}
		b.sessions.ResetAll()
		b.reply(ctx, chatID, "🗑 All tables and documents have been deleted.")

	default:
		logger.TelegramInfo("Chat[%d] User[%d]: Unknown command received: /%s", chatID, userID, command)
		b.reply(ctx, chatID, "Unknown command. Try /help to see available commands.")
	}
}

func (b *Bot) describeSources(ctx context.Context, chatID int64) string {
	sess := b.sessions.Get(chatID)
	var sb strings.Builder

	tables, err := b.deps.Catalog.Tables()
	if err != nil {
		logger.TelegramError("Chat[%d]: Failed to list tables: %v", chatID, err)
	}
	sb.WriteString("Tables:\n")
	writeList(&sb, tables)

	docs, err := b.deps.Catalog.Documents(ctx, sess.DBName)
	if err != nil {
		logger.TelegramError("Chat[%d]: Failed to list documents in %s: %v", chatID, sess.DBName, err)
	}
	fmt.Fprintf(&sb, "\nDocuments in %s:\n", sess.DBName)
	writeList(&sb, docs)

	fmt.Fprintf(&sb, "\nActive table: %s\nActive document: %s", orNone(sess.Table), orNone(sess.Document))
	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for _, it := range items {
		sb.WriteString("  • " + it + "\n")
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func (b *Bot) describeHistory(ctx context.Context, userID int64) string {
	if b.deps.History == nil {
		return "History is not enabled."
	}
	entries, err := b.deps.History.Recent(ctx, strconv.FormatInt(userID, 10), historyLimit)
	if err != nil {
		logger.TelegramError("User[%d]: Failed to read history: %v", userID, err)
		return "Sorry, I couldn't read your history."
	}
	if len(entries) == 0 {
		return "No questions yet."
	}
	var sb strings.Builder
	for i, e := range entries {
		answer := e.Answer
		if e.Image {
			answer = "[chart]"
		}
		answer = truncate(answer, 120)
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, e.Query, answer)
	}
	return sb.String()
}

// sendContinuousTypingAction sends the typing action periodically until the done channel is closed
func (b *Bot) sendContinuousTypingAction(ctx context.Context, chatID int64, done chan struct{}) {
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.bot.SendChatAction(ctx, &bot.SendChatActionParams{
				ChatID: chatID,
				Action: models.ChatActionTyping,
			})
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleTextMessage(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	logger.TelegramInfo("Chat[%d] User[%d]: Received text message.", chatID, userID)

	if !b.deps.Policy.IsActionAllowed(userID, auth.ActionQuery) {
		b.reply(ctx, chatID, "Sorry, you are not allowed to ask questions.")
		return
	}
	sess := b.sessions.Get(chatID)
	if !sess.HasSource() {
		b.reply(ctx, chatID, "No active source. Upload a file or pick one with /table or /doc.")
		return
	}

	typingDone := make(chan struct{})
	go b.sendContinuousTypingAction(ctx, chatID, typingDone)
	defer close(typingDone)

	resp, err := b.deps.Answerer.Answer(ctx, query.Request{
		Query:    message.Text,
		DBName:   sess.DBName,
		Table:    sess.Table,
		Document: sess.Document,
		User:     strconv.FormatInt(userID, 10),
	})
	if err != nil {
		logger.TelegramError("Chat[%d]: Answer failed: %v", chatID, err)
		b.reply(ctx, chatID, "Sorry, I encountered an error while processing your request: "+err.Error())
		return
	}

	if resp.Image != nil {
		if err := b.sendImage(ctx, chatID, *resp.Image); err != nil {
			logger.TelegramError("Chat[%d]: Failed to send chart: %v", chatID, err)
			b.reply(ctx, chatID, "I drew a chart but couldn't send it.")
		}
		return
	}

	answer := ""
	if resp.Answer != nil {
		answer = *resp.Answer
	}
	logger.TelegramInfo("Chat[%d]: Sending answer: \"%s\"", chatID, truncate(answer, 80))
	b.reply(ctx, chatID, answer)
}

func (b *Bot) sendImage(ctx context.Context, chatID int64, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("bad image encoding: %w", err)
	}
	filename := "chart.png"
	if len(data) > maxPhotoBytes {
		data, err = b.shrink(data)
		if err != nil {
			return err
		}
		filename = "chart.jpg"
	}
	_, err = b.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo:  &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
	})
	return err
}

// shrink re-encodes an oversized chart as JPEG.
func (b *Bot) shrink(data []byte) ([]byte, error) {
	tmp, err := os.CreateTemp(b.deps.TempDir, "chart-*.png")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	out, size, err := imageutils.ReEncodeToJPEG(tmp.Name(), jpegReEncodeQuality)
	if err != nil {
		return nil, err
	}
	defer os.Remove(out)
	logger.TelegramWarn("Chart was %d bytes; re-encoded to %d bytes", len(data), size)
	return os.ReadFile(out)
}

func (b *Bot) handleDocument(ctx context.Context, message *models.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	doc := message.Document
	name := filepath.Base(doc.FileName)
	logger.TelegramInfo("Chat[%d] User[%d]: Received file %s (%d bytes)", chatID, userID, name, doc.FileSize)

	isTable := isTableFile(name)
	action := auth.ActionUpload
	if isTable {
		action = auth.ActionUploadTable
	}
	if !b.deps.Policy.IsActionAllowed(userID, action) {
		b.reply(ctx, chatID, "Sorry, you are not allowed to upload files.")
		return
	}

	typingDone := make(chan struct{})
	go b.sendContinuousTypingAction(ctx, chatID, typingDone)
	defer close(typingDone)

	body, err := b.download(ctx, doc.FileID)
	if err != nil {
		logger.TelegramError("Chat[%d]: Failed to download %s: %v", chatID, name, err)
		b.reply(ctx, chatID, "Sorry, I couldn't download your file.")
		return
	}
	defer body.Close()
	file := ingest.File{Name: name, Reader: body}

	if isTable {
		table, err := b.deps.Uploader.UploadTable(ctx, file)
		if err != nil {
			b.reply(ctx, chatID, "Sorry, I couldn't read that table: "+err.Error())
			return
		}
		b.sessions.Update(chatID, func(s *Session) { s.Table = table })
		b.reply(ctx, chatID, fmt.Sprintf("✅ Table %s saved and selected. Ask me anything about it.", table))
		return
	}

	sess := b.sessions.Get(chatID)
	results, err := b.deps.Uploader.UploadDocuments(ctx, ingest.UploadRequest{DBName: sess.DBName, Files: []ingest.File{file}})
	if err != nil || len(results) == 0 {
		if errors.Is(err, ingest.ErrUnsupportedType) {
			b.reply(ctx, chatID, "That file type is not supported. Try /help.")
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("Sorry, I couldn't index %s: %v", name, err))
		return
	}
	b.sessions.Update(chatID, func(s *Session) { s.Document = name })
	b.reply(ctx, chatID, fmt.Sprintf("✅ %s indexed (%d chunks) and selected.", name, results[0].Chunks))
}

func isTableFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// download fetches a Telegram file. The caller closes the body.
func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := b.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	url := b.bot.FileDownloadLink(file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		text = "(empty answer)"
	}
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			logger.TelegramError("Chat[%d]: Failed to send message: %v", chatID, err)
			return
		}
	}
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// splitMessage breaks text into parts of at most limit UTF-16 units,
// preferring to break after a newline in the second half of a part.
func splitMessage(text string, limit int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		units, end, lastNewline := 0, 0, -1
		for end < len(runes) {
			w := utf16.RuneLen(runes[end])
			if w < 0 {
				w = 1
			}
			if units+w > limit {
				break
			}
			units += w
			if runes[end] == '\n' {
				lastNewline = end
			}
			end++
		}
		if end == 0 {
			end = 1
		}
		if end < len(runes) && lastNewline >= end/2 {
			end = lastNewline + 1
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}
