package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"anirec/internal/anilist"
	"anirec/internal/cache"
	"anirec/internal/cmdlog"
	"anirec/internal/config"
	"anirec/internal/eval"
	"anirec/internal/logging"
	"anirec/internal/metrics"
	"anirec/internal/model"
	"anirec/internal/nn"
	"anirec/internal/pipeline"
	"anirec/internal/store/sqlitevec"
	"anirec/internal/theme"
)

const defaultConfigPath = "./anirec.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var err error
	switch cmd {
	case "init":
		err = cmdlog.Run(cmd, cmdInit)
	case "recommend":
		err = cmdlog.Run(cmd, cmdRecommend)
	case "evaluate":
		err = cmdlog.Run(cmd, cmdEvaluate)
	case "season":
		err = cmdlog.Run(cmd, cmdSeason)
	case "runs":
		err = cmdlog.Run(cmd, cmdRuns)
	default:
		printHelp()
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: anirec <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./anirec.yaml")
	fmt.Println("  recommend   Train on the completed list and rank a list (default Planning)")
	fmt.Println("  evaluate    Train and report accuracy on the held-out split")
	fmt.Println("  season      Train and rank a seasonal catalog")
	fmt.Println("  runs        Show past runs")
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "path to write config")
	user := fs.String("user", "", "AniList username")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	cfg.Account.Username = *user
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

// app holds what every training command needs.
type app struct {
	cfg    config.Config
	client *anilist.HTTPClient
	cache  *cache.Cache
	db     *sqlitevec.DB
}

func setup(cfgPath, user string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if user != "" {
		cfg.Account.Username = user
	}
	if cfg.Account.Username == "" {
		return nil, errors.New("no AniList username: set account.username or pass -user")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics.StartServer(cfg.Metrics.Addr)

	c, err := cache.Open(cfg.AniList.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a := &app{cfg: cfg, cache: c}
	if cfg.Storage.DBPath != "" {
		db, err := sqlitevec.Open(cfg.Storage.DBPath)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.db = db
	}
	a.client = anilist.NewHTTPClient(anilist.Options{
		Endpoint:    cfg.AniList.Endpoint,
		Token:       cfg.AniList.Token,
		Timeout:     cfg.AniList.Timeout,
		RPS:         cfg.AniList.RPS,
		Burst:       cfg.AniList.Burst,
		MaxAttempts: cfg.AniList.MaxAttempts,
		BaseBackoff: cfg.AniList.BaseBackoff,
		Cache:       c,
		CacheTTL:    cfg.AniList.CacheTTL,
	})
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.cache.Close()
}

func (a *app) trainer() (nn.Trainer, error) {
	m := a.cfg.Model
	hp := nn.Hyperparams{
		HiddenUnits:  m.HiddenUnits,
		Epochs:       m.Epochs,
		BatchSize:    m.BatchSize,
		Algorithm:    m.Algorithm,
		LearningRate: m.LearningRate,
		Shuffle:      m.Shuffle,
		Seed:         m.Seed,
	}
	return nn.New(m.Backend, hp, m.BinaryPath, m.ModelPath)
}

// train fetches the user's lists and runs the pipeline on the training list.
func (a *app) train(ctx context.Context) (*pipeline.Result, []model.MediaList, string, error) {
	lists, err := a.client.FetchLists(ctx, a.cfg.Account.Username)
	if err != nil {
		return nil, nil, "", fmt.Errorf("fetch lists: %w", err)
	}
	done, err := anilist.FindList(lists, a.cfg.Lists.Training)
	if err != nil {
		return nil, nil, "", err
	}
	tr, err := a.trainer()
	if err != nil {
		return nil, nil, "", err
	}
	res, err := pipeline.Run(ctx, done.Entries, pipeline.Options{
		Trainer:   tr,
		Tolerance: a.cfg.Evaluation.Tolerance,
		Shuffle:   a.cfg.Model.Shuffle,
		Seed:      a.cfg.Model.Seed,
	})
	if err != nil {
		return nil, nil, "", err
	}
	runID := a.persist(ctx, res)
	return res, lists, runID, nil
}

// persist records the run; store failures are logged, not fatal.
func (a *app) persist(ctx context.Context, res *pipeline.Result) string {
	if a.db == nil {
		return ""
	}
	id, err := a.db.SaveRun(ctx, sqlitevec.Run{
		Username:  a.cfg.Account.Username,
		TrainSize: res.TrainSize,
		EvalSize:  res.EvalSize,
		Report:    res.Report,
		FinalLoss: res.Training.FinalLoss,
		Bounds:    res.Model.Bounds,
		Defaults:  res.Model.Defaults,
	})
	if err != nil {
		logging.Warn().Err(err).Msg("run not saved")
		return ""
	}
	if err := a.db.PutFeatureRows(ctx, id, "train", res.TrainMatrix, res.TrainMeta); err != nil {
		logging.Warn().Err(err).Str("run", id).Msg("training rows not saved")
	}
	if err := a.db.PutFeatureRows(ctx, id, "eval", res.EvalMatrix, res.EvalMeta); err != nil {
		logging.Warn().Err(err).Str("run", id).Msg("evaluation rows not saved")
	}
	a.saveRecs(ctx, id, "evaluation", res.Recommended)
	return id
}

func (a *app) saveRecs(ctx context.Context, runID, source string, recs []eval.Scored) {
	if a.db == nil || runID == "" {
		return
	}
	if err := a.db.PutRecommendations(ctx, runID, source, recs); err != nil {
		logging.Warn().Err(err).Str("run", runID).Str("source", source).Msg("recommendations not saved")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdEvaluate() error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	user := fs.String("user", "", "AniList username (overrides config)")
	_ = fs.Parse(os.Args[2:])
	a, err := setup(*cfgPath, *user)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()

	res, _, runID, err := a.train(ctx)
	if err != nil {
		return err
	}
	printRanking(os.Stdout, res.Ranked)
	printReport(os.Stdout, res.Report)
	if runID != "" {
		fmt.Println("run:", runID)
	}
	return nil
}

func cmdRecommend() error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	user := fs.String("user", "", "AniList username (overrides config)")
	listName := fs.String("list", "", "list to rank (default: lists.inference, or lists.custom with -custom)")
	custom := fs.Bool("custom", false, "rank the custom list from config")
	all := fs.Bool("all", false, "print every ranked entry, not only recommendations")
	_ = fs.Parse(os.Args[2:])
	a, err := setup(*cfgPath, *user)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()

	target := a.cfg.Lists.Inference
	if *custom {
		if a.cfg.Lists.Custom == "" {
			return errors.New("no custom list configured (lists.custom)")
		}
		target = a.cfg.Lists.Custom
	}
	if *listName != "" {
		target = *listName
	}

	res, lists, runID, err := a.train(ctx)
	if err != nil {
		return err
	}
	printReport(os.Stdout, res.Report)
	l, err := anilist.FindList(lists, target)
	if err != nil {
		return err
	}
	ranked, recs, err := res.Model.RecommendList(ctx, l.Entries)
	if err != nil {
		return err
	}
	metrics.Recommendations.WithLabelValues("list").Add(float64(len(recs)))
	a.saveRecs(ctx, runID, l.Name, recs)
	fmt.Printf("\n%s: %d of %d above %.2f\n", l.Name, len(recs), len(ranked), res.Model.Defaults.Genre)
	if *all {
		printRanking(os.Stdout, ranked)
	} else {
		printRanking(os.Stdout, recs)
	}
	return nil
}

func cmdSeason() error {
	fs := flag.NewFlagSet("season", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	user := fs.String("user", "", "AniList username (overrides config)")
	seasonName := fs.String("season", "", "WINTER, SPRING, SUMMER or FALL (default: current)")
	year := fs.Int("year", 0, "season year (default: current)")
	_ = fs.Parse(os.Args[2:])

	season, y := currentSeason(time.Now())
	if *seasonName != "" {
		s, err := model.ParseSeason(*seasonName)
		if err != nil {
			return err
		}
		season = s
	}
	if *year > 0 {
		y = *year
	}

	a, err := setup(*cfgPath, *user)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()

	res, _, runID, err := a.train(ctx)
	if err != nil {
		return err
	}
	printReport(os.Stdout, res.Report)
	catalog, err := a.client.FetchSeason(ctx, season, y)
	if err != nil {
		return fmt.Errorf("fetch season: %w", err)
	}
	_, recs, err := res.Model.RecommendCatalog(ctx, catalog)
	if err != nil {
		return err
	}
	source := fmt.Sprintf("season:%s:%d", season, y)
	metrics.Recommendations.WithLabelValues("season").Add(float64(len(recs)))
	a.saveRecs(ctx, runID, source, recs)
	fmt.Printf("\n%s %d: %d of %d recommended\n", season, y, len(recs), len(catalog))
	for _, r := range recs {
		fmt.Printf("%s : %.2f  %s\n", r.Meta.Title, r.Prediction, r.Meta.URL)
	}
	return nil
}

func cmdRuns() error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	limit := fs.Int("limit", 20, "max runs to show")
	show := fs.String("show", "", "run id whose stored recommendations to print")
	source := fs.String("source", "evaluation", "recommendation source for -show")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if cfg.Storage.DBPath == "" {
		return errors.New("storage.db_path is empty")
	}
	db, err := sqlitevec.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	if *show != "" {
		recs, err := db.LoadRecommendations(ctx, *show, *source)
		if err != nil {
			return err
		}
		printRanking(os.Stdout, recs)
		return nil
	}
	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-16s train=%d eval=%d mse=%.4f acc=%.2f default_genre=%.2f\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Username, r.TrainSize, r.EvalSize,
			r.Report.MSE, r.Report.Accuracy, r.Defaults.Genre)
	}
	return nil
}

func printRanking(w io.Writer, entries []eval.Scored) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s : %.2f | %.2f\n", e.Meta.Title, e.Prediction, e.Actual)
	}
}

func printReport(w io.Writer, r eval.Report) {
	fmt.Fprintf(w, "MSE: %.6f\n", r.MSE)
	fmt.Fprintf(w, "Accuracy: %.4f (%d/%d within tolerance)\n", r.Accuracy, r.Correct, r.Total)
}

// currentSeason maps a date to its AniList season.
func currentSeason(now time.Time) (model.Season, int) {
	switch m := now.Month(); {
	case m <= time.March:
		return model.Winter, now.Year()
	case m <= time.June:
		return model.Spring, now.Year()
	case m <= time.September:
		return model.Summer, now.Year()
	default:
		return model.Fall, now.Year()
	}
}
