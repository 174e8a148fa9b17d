//go:build !js && !wasm

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/GazeCaptcha/internal/config"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/replay"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/storage"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/logger"
	"github.com/himanishpuri/GazeCaptcha/pkg/utils"
)

// Global flags
var (
	dbPath   string
	dbDriver string
	seed     uint64
)

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("GAZE_DB_PATH", storage.DefaultDBFile), "SQLite file or postgres DSN")
	flag.StringVar(&dbDriver, "driver", getEnvOrDefault("GAZE_DB_DRIVER", storage.DriverSQLite), "Database driver (sqlite or postgres)")
	flag.Uint64Var(&seed, "seed", 0, "Seed for the challenge order (0 = random)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new GazeCaptcha service with configured options
func createService() (gazecaptcha.Service, error) {
	return gazecaptcha.NewService(
		gazecaptcha.WithDriver(dbDriver, dbPath),
		gazecaptcha.WithSeed(seed),
	)
}

func mustService() gazecaptcha.Service {
	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Printf("⚠️  %v\n", err)
	}
	flag.Parse()

	log := logger.GetLogger()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	rest := args[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(rest)
	case "list":
		handleList()
	case "delete":
		handleDelete(rest)
	case "next":
		handleNext()
	case "verify":
		handleVerify(rest)
	case "recordings":
		handleRecordings(rest)
	case "classify":
		handleClassify(rest)
	case "export":
		handleExport(rest)
	case "replay":
		handleReplay(rest)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// requireChallengeID exits unless id looks like a challenge id.
func requireChallengeID(id string) {
	if !utils.IsUUID(id) {
		fmt.Printf("❌ %q is not a challenge id\n", id)
		os.Exit(1)
	}
}

// splitArgs separates leading positional arguments from trailing flags.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

// parseAnswers reads "x,y[,t];x,y[,t]" into answer points.
func parseAnswers(s string) ([]model.AnswerPoint, error) {
	var out []model.AnswerPoint
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("answer %q: want x,y or x,y,t", part)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("answer %q: %w", part, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("answer %q: %w", part, err)
		}
		a := model.AnswerPoint{XN: x, YN: y}
		if len(fields) == 3 {
			t, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("answer %q: %w", part, err)
			}
			a.T = model.Int64Ptr(t)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no answer points given")
	}
	return out, nil
}

func readUploads(paths []string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, upload.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func handleAdd(args []string) {
	positional, flagArgs := splitArgs(args)

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	question := addCmd.String("question", "", "Question shown with the video")
	answers := addCmd.String("answer", "", `Answer points "x,y[,t];x,y[,t]" in normalized coordinates (t in video ms)`)
	addCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: gazecaptcha add <video_url> --question <text> --answer \"x,y[,t];...\"")
		os.Exit(1)
	}
	points, err := parseAnswers(*answers)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	id, err := svc.AddChallenge(context.Background(), *question, positional[0], points)
	if err != nil {
		fmt.Printf("❌ Failed to add challenge: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Challenge stored:\n")
	fmt.Printf("   ID:       %s\n", id)
	fmt.Printf("   Video:    %s\n", positional[0])
	fmt.Printf("   Answers:  %d point(s)\n", len(points))
}

func handleList() {
	svc := mustService()
	defer svc.Close()
	ctx := context.Background()

	challenges, err := svc.ListChallenges(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to list challenges: %v\n", err)
		logger.Errorf("ListChallenges failed: %v", err)
		os.Exit(1)
	}

	if len(challenges) == 0 {
		fmt.Println("\n📭 No challenges in database")
		return
	}

	fmt.Printf("\n📚 Found %s challenge(s):\n\n", humanize.Comma(int64(len(challenges))))
	for i, ch := range challenges {
		question := ch.Question
		if question == "" {
			question = gazecaptcha.DefaultQuestion
		}
		fmt.Printf("%d. %s (ID: %s)\n", i+1, question, ch.ID)
		fmt.Printf("   Video:   %s\n", ch.VideoURL)
		fmt.Printf("   Answers: %d | Added %s\n", len(ch.Answer), humanize.Time(ch.CreatedAt))
		if recs, err := svc.Recordings(ctx, ch.ID); err == nil && len(recs) > 0 {
			fmt.Printf("   Passed attempts stored: %s\n", humanize.Comma(int64(len(recs))))
		}
		fmt.Println()
	}
}

func handleDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: gazecaptcha delete <challenge_id>")
		os.Exit(1)
	}
	id := args[0]
	requireChallengeID(id)

	svc := mustService()
	defer svc.Close()

	if err := svc.DeleteChallenge(context.Background(), id); err != nil {
		fmt.Printf("❌ Failed to delete challenge %s: %v\n", id, err)
		os.Exit(1)
	}
	fmt.Printf("\n✅ Successfully deleted challenge %s\n", id)
}

func handleNext() {
	svc := mustService()
	defer svc.Close()

	p, err := svc.NextChallenge(context.Background())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n🎬 %s\n", p.Question)
	fmt.Printf("   ID:        %s\n", p.ID)
	fmt.Printf("   Video:     %s\n", p.VideoPath)
	fmt.Printf("   Round:     %d (%d left)\n", p.Round, p.Remaining)
}

func handleVerify(args []string) {
	positional, flagArgs := splitArgs(args)

	verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
	clickOnly := verifyCmd.Bool("clicks-only", false, "Check click positions and times only")
	verifyCmd.Parse(flagArgs)

	if len(positional) < 2 {
		fmt.Println("Usage: gazecaptcha verify <challenge_id> <stream.json>... [--clicks-only]")
		os.Exit(1)
	}
	id := positional[0]
	requireChallengeID(id)

	files, err := readUploads(positional[1:])
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()
	ctx := context.Background()

	res := svc.ClassifyUploads(files)
	printSkipped(res)
	if !res.HasClicks {
		fmt.Println("❌ No click stream found")
		os.Exit(1)
	}

	var verdict model.Verdict
	if *clickOnly {
		verdict, err = svc.VerifyClicksOnly(ctx, id, res.Clicks)
	} else {
		verdict, err = svc.Verify(ctx, id, res.Gaze, res.Clicks)
	}
	if err != nil {
		fmt.Printf("❌ Verification failed: %v\n", err)
		os.Exit(1)
	}

	if verdict.Passed {
		fmt.Printf("\n✅ Pass (%d gaze samples, %d clicks)\n", len(res.Gaze), len(res.Clicks))
		return
	}
	fmt.Printf("\n❌ Fail: %s\n", verdict.Reason)
	os.Exit(2)
}

func handleRecordings(args []string) {
	positional, flagArgs := splitArgs(args)

	recCmd := flag.NewFlagSet("recordings", flag.ExitOnError)
	outDir := recCmd.String("out", "", "Write each recording to this directory")
	mode := recCmd.String("mode", "combined", "Export mode: pair, timestamped or combined")
	recCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: gazecaptcha recordings <challenge_id> [--out <dir>] [--mode combined]")
		os.Exit(1)
	}
	requireChallengeID(positional[0])
	exportMode, err := upload.ParseExportMode(*mode)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	recs, err := svc.Recordings(context.Background(), positional[0])
	if err != nil {
		fmt.Printf("❌ Failed to list recordings: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("\n📭 No stored attempts for this challenge")
		return
	}

	for i, rec := range recs {
		fmt.Printf("%d. %s  %s gaze, %d clicks, %s\n", i+1, rec.ID,
			humanize.Comma(int64(len(rec.Gaze))), len(rec.Clicks), humanize.Time(rec.CreatedAt))
		if *outDir == "" {
			continue
		}
		dir := filepath.Join(*outDir, rec.ID)
		files, err := upload.Export(rec.Gaze, rec.Clicks, exportMode, rec.CreatedAt)
		if err == nil {
			_, err = upload.WriteExport(dir, files)
		}
		if err != nil {
			fmt.Printf("   ❌ export failed: %v\n", err)
			continue
		}
		fmt.Printf("   💾 %s\n", dir)
	}
}

func handleClassify(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: gazecaptcha classify <file.json>...")
		os.Exit(1)
	}
	files, err := readUploads(args)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	res := upload.NewLoader(0).LoadFiles(files)
	fmt.Printf("\n📂 %s\n", upload.Label(args))
	printStreams(res)
	printSkipped(res)
}

func handleExport(args []string) {
	positional, flagArgs := splitArgs(args)

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	mode := exportCmd.String("mode", "pair", "Export mode: pair, timestamped or combined")
	outDir := exportCmd.String("out", ".", "Output directory")
	exportCmd.Parse(flagArgs)

	if len(positional) == 0 {
		fmt.Println("Usage: gazecaptcha export <file.json>... [--mode pair|timestamped|combined] [--out <dir>]")
		os.Exit(1)
	}
	exportMode, err := upload.ParseExportMode(*mode)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	files, err := readUploads(positional)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	res := upload.NewLoader(0).LoadFiles(files)
	printSkipped(res)
	if res.Empty() {
		fmt.Println("❌ Nothing to export")
		os.Exit(1)
	}

	out, err := upload.Export(res.Gaze, res.Clicks, exportMode, time.Now())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	paths, err := upload.WriteExport(*outDir, out)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil {
			fmt.Printf("💾 %s (%s)\n", p, humanize.Bytes(uint64(st.Size())))
		}
	}
}

func handleReplay(args []string) {
	positional, flagArgs := splitArgs(args)

	replayCmd := flag.NewFlagSet("replay", flag.ExitOnError)
	step := replayCmd.Duration("step", 100*time.Millisecond, "Frame step of the simulated playback")
	realtime := replayCmd.Bool("realtime", false, "Play in real time instead of stepping a simulated clock")
	replayCmd.Parse(flagArgs)

	if len(positional) == 0 {
		fmt.Println("Usage: gazecaptcha replay <file.json>... [--step 100ms] [--realtime]")
		os.Exit(1)
	}
	files, err := readUploads(positional)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	res := upload.NewLoader(0).LoadFiles(files)
	printSkipped(res)
	if res.Empty() {
		fmt.Println("❌ Nothing to replay")
		os.Exit(1)
	}

	fmt.Printf("\n▶️  Replaying %s\n\n", upload.Label(positional))
	if *realtime {
		replayRealtime(res, *step)
		return
	}
	for _, line := range simulateReplay(res, *step) {
		fmt.Println(line)
	}
}

// playbackEnd is the last timestamp of interest in video time.
func playbackEnd(res upload.Result) int64 {
	var end int64
	for _, c := range res.Clicks {
		end = max(end, c.T)
	}
	for _, g := range res.Gaze {
		end = max(end, g.TV)
	}
	if len(res.Gaze) > 0 {
		first, last := res.Gaze[0].T, res.Gaze[0].T
		for _, g := range res.Gaze {
			first, last = min(first, g.T), max(last, g.T)
		}
		end = max(end, last-first)
	}
	return end
}

// simulateReplay steps a manual clock and video together and reports every
// frame in which the visible sets change.
func simulateReplay(res upload.Result, step time.Duration) []string {
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	clock := replay.NewManualClock(time.Unix(0, 0))
	video := &replay.ManualVideo{}
	loop := &replay.ManualLoop{}

	sched := replay.NewScheduler(clock)
	sched.Load(res.Gaze, res.Clicks)

	var lines []string
	lastGaze, lastClicks := -1, -1
	sched.Start(loop, video, func(f replay.Frame) {
		if len(f.Gaze) == lastGaze && len(f.Clicks) == lastClicks {
			return
		}
		lastGaze, lastClicks = len(f.Gaze), len(f.Clicks)
		lines = append(lines, fmt.Sprintf("%7dms  gaze %5d  clicks %3d", f.VideoTimeMs, len(f.Gaze), len(f.Clicks)))
	})
	defer sched.Cancel()

	end := playbackEnd(res) + step.Milliseconds()
	for ms := int64(0); ms <= end; ms += step.Milliseconds() {
		video.Seek(ms)
		loop.Step()
		clock.Advance(step)
	}
	return lines
}

func replayRealtime(res upload.Result, interval time.Duration) {
	start := time.Now()
	video := replay.VideoClockFunc(func() int64 { return time.Since(start).Milliseconds() })

	sched := replay.NewScheduler(replay.SystemClock{})
	sched.Load(res.Gaze, res.Clicks)

	done := make(chan struct{})
	end := playbackEnd(res)
	var closed bool
	sched.Start(replay.TickerLoop{Interval: interval}, video, func(f replay.Frame) {
		fmt.Printf("\r%7dms  gaze %5d  clicks %3d", f.VideoTimeMs, len(f.Gaze), len(f.Clicks))
		if f.VideoTimeMs > end && !closed {
			closed = true
			close(done)
		}
	})
	<-done
	sched.Cancel()
	fmt.Println()
}

func printStreams(res upload.Result) {
	if res.HasGaze {
		fmt.Printf("   👀 gaze:   %s samples\n", humanize.Comma(int64(len(res.Gaze))))
	}
	if res.HasClicks {
		fmt.Printf("   🖱️  clicks: %d\n", len(res.Clicks))
	}
}

func printSkipped(res upload.Result) {
	for _, s := range res.Skipped {
		fmt.Printf("   ⚠️  skipped %s: %v\n", s.Name, s.Err)
	}
}

func printUsage() {
	fmt.Println("GazeCaptcha - gaze and click video challenge CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        SQLite file or postgres DSN (env: GAZE_DB_PATH, default: gazecaptcha.sqlite3)")
	fmt.Println("  --driver <name>    sqlite or postgres (env: GAZE_DB_DRIVER, default: sqlite)")
	fmt.Println("  --seed <n>         Seed for the challenge order")
	fmt.Println("\nUsage:")
	fmt.Println("  gazecaptcha [global-options] add <video_url> --question <text> --answer \"x,y[,t];...\"")
	fmt.Println("  gazecaptcha [global-options] list")
	fmt.Println("  gazecaptcha [global-options] delete <challenge_id>")
	fmt.Println("  gazecaptcha [global-options] next")
	fmt.Println("  gazecaptcha [global-options] verify <challenge_id> <stream.json>... [--clicks-only]")
	fmt.Println("  gazecaptcha [global-options] recordings <challenge_id> [--out <dir>] [--mode combined]")
	fmt.Println("  gazecaptcha classify <file.json>...")
	fmt.Println("  gazecaptcha export <file.json>... [--mode pair|timestamped|combined] [--out <dir>]")
	fmt.Println("  gazecaptcha replay <file.json>... [--step 100ms] [--realtime]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Add a challenge whose answer is the centre of the frame")
	fmt.Println("  gazecaptcha add https://cdn.example.com/ball.mp4 --question \"Where does the ball stop?\" --answer \"0.5,0.5\"")
	fmt.Println()
	fmt.Println("  # Verify a downloaded attempt")
	fmt.Println("  gazecaptcha verify 6f1c... gaze_clicks_at_submit_2024-03-05T07-08-09-123Z.json")
}
