package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/cropsight/cropsight"
	"github.com/cropsight/cropsight/internal/logging"
)

var (
	configPath   = flag.String("config", "cropsight.yaml", "Path to config file")
	dbPath       = flag.String("db", "", "Override path to prototype database")
	learnLabel   = flag.String("learn", "", "Learn a new class under this label (requires -images)")
	imagesDir    = flag.String("images", "", "Directory of exemplar images for -learn")
	classifyPath = flag.String("classify", "", "Path of a single image to classify")
	scanDir      = flag.String("scan", "", "Classify every image in a directory")
	list         = flag.Bool("list", false, "List learned prototypes")
	serve        = flag.Bool("serve", false, "Run the HTTP API server")
	port         = flag.String("port", "8080", "HTTP server port")

	lameduck bool
)

func findImageFiles(root string) ([]string, error) {
	var images []string

	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
			images = append(images, path)
		}

		return nil
	})

	return images, err
}

func runLearn(ctx context.Context, cs *cropsight.Cropsight) error {
	if *imagesDir == "" {
		return fmt.Errorf("-learn requires -images")
	}

	paths, err := findImageFiles(*imagesDir)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d exemplar images on disk\n", len(paths))

	images := make([][]byte, len(paths))
	for i, p := range paths {
		if images[i], err = os.ReadFile(p); err != nil {
			return err
		}
	}

	proto, err := cs.Learn(ctx, *learnLabel, images)
	if err != nil {
		return err
	}

	fmt.Printf("Learned %q from %d exemplars (estimated accuracy %.2f)\n",
		proto.Label, proto.SampleCount, proto.EstAccuracy)
	return nil
}

func runClassify(ctx context.Context, cs *cropsight.Cropsight, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	res, err := cs.Classify(ctx, image)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runScan(ctx context.Context, cs *cropsight.Cropsight) error {
	paths, err := findImageFiles(*scanDir)
	if err != nil {
		return err
	}
	fmt.Printf("%d images to classify\n", len(paths))

	bar := progressbar.NewOptions(
		len(paths),
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	type scanline struct {
		file  string
		label string
		conf  float64
		err   error
	}
	var (
		lines  []scanline
		errcnt int
	)
	for _, p := range paths {
		if lameduck {
			break
		}
		if errcnt >= 5 {
			fmt.Println("Too many errors, exiting")
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		image, err := os.ReadFile(p)
		if err == nil {
			res, cerr := cs.Classify(ctx, image)
			if cerr != nil {
				err = cerr
			} else {
				lines = append(lines, scanline{file: p, label: res.Label, conf: res.Confidence})
			}
		}
		if err != nil {
			errcnt++
			lines = append(lines, scanline{file: p, err: err})
		}

		bar.Add(1)
	}
	bar.Finish()

	for _, l := range lines {
		_, fname := filepath.Split(l.file)
		if l.err != nil {
			fmt.Printf("%-40s error: %s\n", fname, l.err)
			continue
		}
		fmt.Printf("%-40s %s (%.2f)\n", fname, l.label, l.conf)
	}
	return nil
}

func runList(ctx context.Context, cs *cropsight.Cropsight) error {
	protos, err := cs.ListPrototypes(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%d learned classes\n", len(protos))
	for _, p := range protos {
		fmt.Printf("%-40s samples=%d acc=%.2f created=%s\n",
			p.Label, p.SampleCount, p.EstAccuracy, p.CreatedAt.Format(time.DateOnly))
	}
	return nil
}

func run(ctx context.Context, cs *cropsight.Cropsight) error {
	switch {
	case *learnLabel != "":
		return runLearn(ctx, cs)
	case *classifyPath != "":
		return runClassify(ctx, cs, *classifyPath)
	case *scanDir != "":
		return runScan(ctx, cs)
	case *list:
		return runList(ctx, cs)
	case *serve:
		srv := NewServer(cs, *port)
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		fmt.Printf("Listening on :%s\n", *port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("no mode selected")
	}
}

func sighandler(ch chan os.Signal, cancel context.CancelFunc) {
	for {
		<-ch
		if lameduck {
			// Already in lame duck, hard stop
			fmt.Println("Exiting")
			cancel()
			return
		} else {
			fmt.Println("SIGINT received, stopping...")
			lameduck = true
		}
	}
}

func main() {
	godotenv.Load()
	flag.Parse()

	cfg, err := cropsight.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel))

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go sighandler(sigch, cancel)

	cs, err := cropsight.Init(ctx, cropsight.InitOptions{
		Config: cfg,
		HttpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Logger: slog.Default(),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cs.Close()

	if err := run(ctx, cs); err != nil {
		log.Fatal(err)
	}
}
