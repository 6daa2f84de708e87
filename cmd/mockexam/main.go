package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/mockexam/internal/handler"
	appI18n "github.com/pavelanni/mockexam/internal/i18n"
	"github.com/pavelanni/mockexam/internal/lexicon"
	"github.com/pavelanni/mockexam/internal/llm"
	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/moodle"
	"github.com/pavelanni/mockexam/internal/pattern"
	"github.com/pavelanni/mockexam/internal/prompt"
	"github.com/pavelanni/mockexam/internal/reference"
	"github.com/pavelanni/mockexam/internal/render"
	"github.com/pavelanni/mockexam/internal/store"
	"github.com/pavelanni/mockexam/internal/synth"
)

func main() {
	// Local development keeps credentials in a .env file; a missing file
	// is not an error.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mockexam",
		Short: "Mock exam generator driven by past exams and an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), analyzeCmd(), planCmd(), cheatSheetCmd(), coursesCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mockexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags are shared by every subcommand that builds the pipeline.
func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "mockexam.db", "SQLite database path")
	f.String("data-dir", "data", "Root directory for reference caches and generated exams")
	f.String("courses-dir", "courses", "Local course materials, one subdirectory per course")
	f.String("institution", "University", "Institution name printed on generated exams")
	f.StringP("lang", "l", "en", "Output language (en, it)")
	f.String("llm-url", "", "Messages API endpoint (default: Anthropic)")
	f.String("llm-key", "", "API key for the LLM (or set MOCKEXAM_LLM_KEY)")
	f.String("llm-model", "", "LLM model name")
	f.Int("max-tokens", 0, "Maximum tokens per generation")
	f.Int("max-attempts", 0, "Generation attempts before giving up")
	f.Int("backoff", 0, "Seconds between generation attempts")
	f.Int("exclude-years", 0, "Recency window: years excluded from reference exams (0 = default)")
	f.Int("max-references", 0, "Reference exams fed into pattern extraction (0 = no cap)")
	f.String("moodle-url", "", "Moodle base URL (optional)")
	f.String("moodle-token", "", "Moodle web service token (or set MOCKEXAM_MOODLE_TOKEN)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam generation server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	commonFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <course-code>",
		Short: "Generate one mock exam PDF for a course",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	commonFlags(cmd)
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <course-code>",
		Short: "Summarize a course's materials and cache the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	commonFlags(cmd)
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <course-code>",
		Short: "Generate a study plan from the course materials",
		Args:  cobra.ExactArgs(1),
		RunE:  runStudyAid((*synth.Pipeline).StudyPlan),
	}
	commonFlags(cmd)
	return cmd
}

func cheatSheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cheatsheet <course-code>",
		Short: "Generate a one-page reference from the course materials",
		Args:  cobra.ExactArgs(1),
		RunE:  runStudyAid((*synth.Pipeline).CheatSheet),
	}
	commonFlags(cmd)
	return cmd
}

func coursesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List the course catalog",
		RunE:  runCourses,
	}
	cmd.Flags().Bool("sync", false, "Refresh the catalog from Moodle before listing")
	commonFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mockexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mockexam")
	v.AddConfigPath("/etc/mockexam")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app bundles everything a subcommand needs once configuration is resolved.
type app struct {
	store    *store.Store
	pipeline *synth.Pipeline
	moodle   *moodle.Client
	cfg      model.SynthConfig
}

func buildApp(v *viper.Viper) (*app, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg := model.SynthConfig{
		DataDir:       v.GetString("data-dir"),
		CoursesDir:    v.GetString("courses-dir"),
		Institution:   v.GetString("institution"),
		Language:      v.GetString("lang"),
		MaxAttempts:   v.GetInt("max-attempts"),
		BackoffSecs:   v.GetInt("backoff"),
		MaxTokens:     v.GetInt("max-tokens"),
		ModelID:       v.GetString("llm-model"),
		ExcludeYears:  v.GetInt("exclude-years"),
		MaxReferences: v.GetInt("max-references"),
	}

	if err := appI18n.Init(cfg.Language); err != nil {
		db.Close()
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	lex := lexicon.Default()
	if cfg.ExcludeYears > 0 {
		lex.RecencyWindow = cfg.ExcludeYears
	}

	lms := moodle.New(v.GetString("moodle-url"), v.GetString("moodle-token"))

	generator := llm.New(llm.Config{
		Endpoint:    v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       cfg.ModelID,
		MaxTokens:   cfg.MaxTokens,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     time.Duration(cfg.BackoffSecs) * time.Second,
	})
	if !generator.Configured() {
		slog.Warn("no LLM API key configured, generation will fail",
			"hint", "set --llm-key or MOCKEXAM_LLM_KEY")
	}

	pipeline := synth.New(
		reference.New(lms, lex, cfg.DataDir),
		pattern.New(lex),
		prompt.NewAssembler(cfg.Institution, cfg.Language),
		generator,
		render.New(cfg.DataDir, cfg.Institution, lex.ExerciseMarkers),
		db,
		cfg,
	)

	return &app{store: db, pipeline: pipeline, moodle: lms, cfg: cfg}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	h := handler.New(a.store, a.pipeline, a.moodle)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(a.cfg.Language))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"data_dir", a.cfg.DataDir,
		"courses_dir", a.cfg.CoursesDir,
		"lang", a.cfg.Language,
		"moodle", a.moodle.Configured(),
	)
	return http.ListenAndServe(addr, r)
}

// resolveCourse prefers the catalog entry but accepts unknown codes so the
// CLI works without a synced catalog.
func resolveCourse(a *app, code string) model.Course {
	course, err := a.store.GetCourse(code)
	if err != nil {
		slog.Debug("course not in catalog, using bare code", "course", code)
		return model.Course{Code: code, Name: code}
	}
	return course
}

func runGenerate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(a.cfg.Language))
	res, err := a.pipeline.Synthesize(ctx, resolveCourse(a, args[0]))
	if err != nil {
		return fmt.Errorf("generate exam: %w", err)
	}

	fmt.Printf("Generated %s\n", res.Document.Path)
	for _, o := range res.Outcomes {
		if o.Status != model.StageOK {
			fmt.Printf("  %s: %s (%s)\n", o.Stage, o.Status, o.Reason)
		}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(a.cfg.Language))
	analysis, err := a.pipeline.AnalyzeCourse(ctx, resolveCourse(a, args[0]))
	if err != nil {
		return fmt.Errorf("analyze course: %w", err)
	}

	fmt.Println(analysis)
	return nil
}

func runStudyAid(produce func(*synth.Pipeline, context.Context, model.Course) (*synth.StudyAid, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd)
		v := viperForCmd(cmd)

		a, err := buildApp(v)
		if err != nil {
			return err
		}
		defer a.store.Close()

		ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(a.cfg.Language))
		aid, err := produce(a.pipeline, ctx, resolveCourse(a, args[0]))
		if err != nil {
			return err
		}

		fmt.Printf("Written %s\n", aid.Path)
		return nil
	}
}

func runCourses(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if v.GetBool("sync") {
		if !a.moodle.Configured() {
			return fmt.Errorf("sync requires --moodle-url and --moodle-token")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		courses, err := a.moodle.ListCourses(ctx)
		if err != nil {
			return fmt.Errorf("list courses from Moodle: %w", err)
		}
		for _, c := range courses {
			if err := a.store.UpsertCourse(c); err != nil {
				return fmt.Errorf("store course %s: %w", c.Code, err)
			}
		}
		slog.Info("course catalog synced", "count", len(courses))
	}

	courses, err := a.store.ListCourses()
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	if len(courses) == 0 {
		fmt.Println("No courses in the catalog. Run `mockexam courses --sync` to import from Moodle.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tMOODLE ID")
	for _, c := range courses {
		fmt.Fprintf(w, "%s\t%s\t%d\n", c.Code, c.Name, c.MoodleID)
	}
	return w.Flush()
}
