package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/mediahub/postpipe/app/api"
	"github.com/mediahub/postpipe/app/cfg"
	"github.com/mediahub/postpipe/app/config"
	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/digest"
	"github.com/mediahub/postpipe/app/dispatch"
	"github.com/mediahub/postpipe/app/ingest"
	"github.com/mediahub/postpipe/app/lifecycle"
	"github.com/mediahub/postpipe/app/screenshot"
	"github.com/mediahub/postpipe/app/tasks"
	"github.com/mediahub/postpipe/app/timeutil"
	"github.com/mediahub/postpipe/app/transport"
)

var opts cfg.Options

func main() {
	// Transport credentials and local overrides live in .env when present.
	_ = godotenv.Load()

	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("init-db", "Initialize the database", "Create the database file and apply migrations.", &initDBCommand{})
	parser.AddCommand("fetch", "Ingest feed sources", "Fetch all configured feed sources once and draft posts for new content.", &fetchCommand{})
	parser.AddCommand("list", "List posts", "List posts filtered by status, channel and recency.", &listCommand{})
	parser.AddCommand("view", "View a post", "Show a post with all its threads.", &viewCommand{})
	parser.AddCommand("create", "Create a manual post", "Create a draft post not tied to any feed content.", &createCommand{})
	parser.AddCommand("edit", "Edit a thread message", "Replace the message of one thread.", &editCommand{})
	parser.AddCommand("add-thread", "Add a thread", "Append a message segment to a post.", &addThreadCommand{})
	parser.AddCommand("delete-thread", "Delete a thread", "Remove one thread and renumber the rest.", &deleteThreadCommand{})
	parser.AddCommand("schedule", "Reschedule a post", "Set a post's scheduled instant from relative or absolute input.", &scheduleCommand{})
	parser.AddCommand("image", "Manage a thread image", "Attach, replace or clear the image of one thread.", &imageCommand{})
	parser.AddCommand("approve", "Approve a post", "Move a draft or errored post into the approved state.", &approveCommand{})
	parser.AddCommand("delete", "Delete a post", "Delete a draft post and its threads.", &deleteCommand{})
	parser.AddCommand("dispatch", "Dispatch due posts", "Publish every approved post whose schedule has elapsed.", &dispatchCommand{})
	parser.AddCommand("digest", "Generate content digests", "Render the markdown newsletter or the static site JSON payload.", &digestCommand{})
	parser.AddCommand("serve", "Run the background service", "Run the interval scheduler and the status API server.", &serveCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

// app bundles the shared dependencies every subcommand starts from.
type app struct {
	cfg       *cfg.Cfg
	db        *database.DB
	content   *database.ContentStore
	posts     *database.PostStore
	lifecycle *lifecycle.Service
}

func newApp() (*app, error) {
	c, err := cfg.Resolve(opts)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	db, err := database.NewConnection(c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	content := database.NewContentStore(db)
	posts := database.NewPostStore(db)
	capturer := screenshot.NewCommandCapturer(c.ScreenshotCmd, c.ScreenshotDir)

	return &app{
		cfg:       c,
		db:        db,
		content:   content,
		posts:     posts,
		lifecycle: lifecycle.NewService(posts, content, capturer, c.Zone),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) loadChannels() (*config.File, error) {
	channels, err := config.Load(a.cfg.ChannelsFile)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (a *app) newPipeline() *ingest.Pipeline {
	capturer := screenshot.NewCommandCapturer(a.cfg.ScreenshotCmd, a.cfg.ScreenshotDir)
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return ingest.NewPipeline(a.content, a.posts, capturer, httpClient, a.cfg.UserAgent)
}

type initDBCommand struct{}

func (cmd *initDBCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Database ready at %s\n", a.cfg.DatabasePath)
	return nil
}

type fetchCommand struct{}

func (cmd *fetchCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	channels, err := a.loadChannels()
	if err != nil {
		return err
	}

	reports := a.newPipeline().Run(context.Background(), channels.Sources())

	var newItems, drafted int
	for _, r := range reports {
		newItems += r.NewItems
		drafted += r.Drafted
	}
	fmt.Printf("Fetched %d sources: %d new items, %d posts drafted\n", len(reports), newItems, drafted)
	return nil
}

type listCommand struct {
	Status  string `long:"status" description:"Filter by status (draft, approved, posted, error)"`
	Channel string `long:"channel" description:"Filter by channel name"`
	Days    int    `long:"days" description:"Only posts created within the last N days"`
}

func (cmd *listCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := database.PostListFilter{MediaID: cmd.Channel}
	if cmd.Status != "" {
		status := database.PostStatus(cmd.Status)
		switch status {
		case database.StatusDraft, database.StatusApproved, database.StatusPosted, database.StatusError:
			filter.Status = status
		default:
			return fmt.Errorf("invalid status %q", cmd.Status)
		}
	}
	if cmd.Days > 0 {
		filter.Within = time.Duration(cmd.Days) * 24 * time.Hour
	}

	summaries, err := a.lifecycle.List(filter)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Println("No posts found")
		return nil
	}

	fmt.Printf("%-5s %-10s %-9s %-23s %s\n", "ID", "CHANNEL", "STATUS", "SCHEDULED", "PREVIEW")
	for _, s := range summaries {
		fmt.Printf("%-5d %-10s %-9s %-23s %s\n",
			s.Post.ID, s.Post.MediaID, s.Post.Status, s.ScheduledLocal, s.Preview)
	}
	return nil
}

type viewCommand struct {
	Args struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *viewCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := a.lifecycle.Get(cmd.Args.PostID)
	if err != nil {
		return err
	}

	p := detail.Post
	fmt.Printf("Post %d [%s] channel=%s\n", p.ID, p.Status, p.MediaID)
	fmt.Printf("Scheduled: %s\n", detail.ScheduledLocal)
	if p.ContentUniqueID != "" {
		fmt.Printf("Content:   %s\n", p.ContentUniqueID)
	}
	if p.PostedAt != nil {
		fmt.Printf("Posted:    %s\n", timeutil.RenderInZone(*p.PostedAt, a.cfg.Zone))
	}
	if p.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", p.ErrorMessage)
	}

	for _, th := range detail.Threads {
		fmt.Printf("\n--- Thread %d ---\n%s\n", th.ThreadOrder, th.Message)
		if th.ImagePath != "" {
			fmt.Printf("[image: %s]\n", th.ImagePath)
		}
		if th.PostedTweetID != "" {
			fmt.Printf("[remote id: %s]\n", th.PostedTweetID)
		}
	}
	return nil
}

type createCommand struct {
	Channel  string `long:"channel" required:"true" description:"Channel the post belongs to"`
	Message  string `long:"message" required:"true" description:"Message text of the first thread"`
	Schedule string `long:"schedule" description:"Schedule input (now, +2h, 2025-01-02 15:04); defaults to one hour ahead"`
}

func (cmd *createCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.lifecycle.CreateManualPost(cmd.Channel, cmd.Message, cmd.Schedule)
	if err != nil {
		return err
	}
	fmt.Printf("Created draft post %d\n", id)
	return nil
}

type editCommand struct {
	Message string `long:"message" required:"true" description:"Replacement message text"`
	Args    struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
		Order  int   `positional-arg-name:"thread-order" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *editCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lifecycle.EditThreadMessage(cmd.Args.PostID, cmd.Args.Order, cmd.Message); err != nil {
		return err
	}
	fmt.Printf("Updated thread %d of post %d\n", cmd.Args.Order, cmd.Args.PostID)
	return nil
}

type addThreadCommand struct {
	Message string `long:"message" required:"true" description:"Message text of the new thread"`
	Args    struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *addThreadCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	order, err := a.lifecycle.AddThread(cmd.Args.PostID, cmd.Message)
	if err != nil {
		return err
	}
	fmt.Printf("Added thread %d to post %d\n", order, cmd.Args.PostID)
	return nil
}

type deleteThreadCommand struct {
	Args struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
		Order  int   `positional-arg-name:"thread-order" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *deleteThreadCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lifecycle.DeleteThread(cmd.Args.PostID, cmd.Args.Order); err != nil {
		return err
	}
	fmt.Printf("Deleted thread %d from post %d\n", cmd.Args.Order, cmd.Args.PostID)
	return nil
}

type scheduleCommand struct {
	At   string `long:"at" required:"true" description:"Schedule input (now, +30m, 2025-01-02 15:04, 15:04)"`
	Args struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *scheduleCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scheduledAt, err := a.lifecycle.SetSchedule(cmd.Args.PostID, cmd.At)
	if err != nil {
		return err
	}
	fmt.Printf("Post %d scheduled for %s\n", cmd.Args.PostID, timeutil.RenderInZone(scheduledAt, a.cfg.Zone))
	return nil
}

type imageCommand struct {
	Auto  bool   `long:"auto" description:"Capture a screenshot of the post's origin page"`
	File  string `long:"file" description:"Attach an existing local image file"`
	Clear bool   `long:"clear" description:"Remove the thread's image"`
	Args  struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
		Order  int   `positional-arg-name:"thread-order" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *imageCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var action lifecycle.ImageAction
	switch {
	case cmd.Auto && cmd.File == "" && !cmd.Clear:
		action = lifecycle.ImageAuto
	case cmd.File != "" && !cmd.Auto && !cmd.Clear:
		action = lifecycle.ImageManual
	case cmd.Clear && !cmd.Auto && cmd.File == "":
		action = lifecycle.ImageClear
	default:
		return fmt.Errorf("exactly one of --auto, --file or --clear is required")
	}

	if err := a.lifecycle.ManageImage(cmd.Args.PostID, cmd.Args.Order, action, cmd.File); err != nil {
		return err
	}
	fmt.Printf("Image updated for thread %d of post %d\n", cmd.Args.Order, cmd.Args.PostID)
	return nil
}

type approveCommand struct {
	Args struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *approveCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lifecycle.Approve(cmd.Args.PostID); err != nil {
		return err
	}
	fmt.Printf("Post %d approved\n", cmd.Args.PostID)
	return nil
}

type deleteCommand struct {
	Args struct {
		PostID int64 `positional-arg-name:"post-id" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *deleteCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lifecycle.Delete(cmd.Args.PostID); err != nil {
		return err
	}
	fmt.Printf("Post %d deleted\n", cmd.Args.PostID)
	return nil
}

type dispatchCommand struct{}

func (cmd *dispatchCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := transport.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("transport not configured: %w", err)
	}

	report, err := dispatch.NewDispatcher(a.posts, client).RunDue(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Dispatched %d due posts: %d posted, %d failed\n", report.Due, report.Posted, report.Failed)
	return nil
}

type digestCommand struct {
	Site   bool   `long:"site" description:"Generate the static site JSON payload instead of the newsletter"`
	Days   int    `long:"days" default:"7" description:"Content window in days"`
	Items  int    `long:"items" default:"5" description:"Entries per channel card (site payload)"`
	Output string `long:"output" description:"Write to this file instead of stdout"`
}

func (cmd *digestCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	channels, err := a.loadChannels()
	if err != nil {
		return err
	}

	out := os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	gen := digest.NewGenerator(a.content, channels, a.cfg.Zone)
	window := time.Duration(cmd.Days) * 24 * time.Hour
	if cmd.Site {
		return gen.SiteData(out, window, cmd.Items)
	}
	return gen.Newsletter(out, window)
}

type serveCommand struct{}

func (cmd *serveCommand) Execute(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	channels, err := a.loadChannels()
	if err != nil {
		return err
	}

	client, err := transport.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("transport not configured: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(a.posts, client)
	interval := time.Duration(a.cfg.SchedulerInterval) * time.Second
	scheduler := tasks.NewScheduler(a.newPipeline(), dispatcher, channels, interval)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "interval", interval.String(), "sources", len(channels.Sources()))

	handler := api.NewHandler(a.content, a.posts, a.lifecycle, a.cfg.Version)
	server := api.NewServer(handler, a.cfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Status API listening", "port", a.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
