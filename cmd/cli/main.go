package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
)

const usage = "expected 'export', 'import', 'purge', 'genkey' or 'solve' subcommands"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")
	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	genkeyCmd := flag.NewFlagSet("genkey", flag.ExitOnError)
	keyBytes := genkeyCmd.Int("bytes", 32, "secret length in bytes")
	solveCmd := flag.NewFlagSet("solve", flag.ExitOnError)
	solveFile := solveCmd.String("file", "", "challenge JSON (default stdin)")
	solveEntropy := solveCmd.String("entropy", "", "client entropy (default random)")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "genkey":
		genkeyCmd.Parse(os.Args[2:])
		key, err := genKey(*keyBytes)
		if err != nil {
			log.Fatalf("genkey failed: %v", err)
		}
		fmt.Println(key)
		return
	case "solve":
		solveCmd.Parse(os.Args[2:])
		in := io.Reader(os.Stdin)
		if *solveFile != "" {
			f, err := os.Open(*solveFile)
			if err != nil {
				log.Fatalf("Failed to open file: %v", err)
			}
			defer f.Close()
			in = f
		}
		if err := doSolve(context.Background(), in, os.Stdout, *solveEntropy, time.Now()); err != nil {
			log.Fatalf("solve failed: %v", err)
		}
		return
	}

	cfg := config.Load()
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}
	defer repo.Close()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		doExport(repo)
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		doImport(repo, *importFile)
	case "purge":
		purgeCmd.Parse(os.Args[2:])
		doPurge(cfg, repo)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func doExport(repo *sqlite.SQLiteRepository) {
	links, err := repo.Dump(context.Background())
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(links); err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
}

func doImport(repo *sqlite.SQLiteRepository, filename string) {
	file, err := os.Open(filename)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()

	var links []domain.ProtectedLink
	if err := json.NewDecoder(file).Decode(&links); err != nil {
		log.Fatalf("Decode failed: %v", err)
	}

	ctx := context.Background()
	count := 0
	for _, l := range links {
		// Slugs are the stable identity; IDs are reassigned.
		existing, err := repo.GetBySlug(ctx, l.Slug)
		if err != nil {
			log.Printf("Failed to look up %s: %v", l.Slug, err)
			continue
		}
		if existing != nil {
			log.Printf("Skipping existing slug: %s", l.Slug)
			continue
		}

		l.ID = 0
		if l.Flow == "" {
			l.Flow = domain.FlowStandard
		}
		if err := repo.Create(ctx, &l); err != nil {
			log.Printf("Failed to import %s: %v", l.Slug, err)
		} else {
			count++
		}
	}
	log.Printf("Imported %d links", count)
}

// doPurge runs one reaper pass. Useful where no long-running server exists.
func doPurge(cfg *config.Config, repo *sqlite.SQLiteRepository) {
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	reaper := services.NewReaper(repo.Challenges(), repo.Sessions(), repo.Suspicious(), nil, cfg.ReaperInterval, services.SystemClock{}, logger)

	stats, err := reaper.RunOnce(context.Background())
	if err != nil {
		log.Printf("Purge finished with errors: %v", err)
	}
	log.Printf("Purged %d challenges, %d sessions, %d suspicious entries", stats.Challenges, stats.Sessions, stats.Suspicious)
}

func genKey(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("refusing to generate a %d-byte secret", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type solution struct {
	ChallengeID string `json:"challenge_id"`
	Timing      int64  `json:"timing"`
	Entropy     string `json:"entropy"`
	Counter     int64  `json:"counter"`
	Proof       string `json:"proof"`
}

// doSolve reads a challenge as served by GET /challenge and prints a
// submission body plus the X-Client-Proof value.
func doSolve(ctx context.Context, in io.Reader, out io.Writer, entropy string, now time.Time) error {
	var c domain.Challenge
	if err := json.NewDecoder(in).Decode(&c); err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}
	if c.ID == "" || c.Nonce == "" {
		return fmt.Errorf("challenge is missing challenge_id or nonce")
	}
	if entropy == "" {
		b := make([]byte, 8)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		entropy = hex.EncodeToString(b)
	}

	timing := now.UnixMilli()
	counter, proof, err := services.SolveChallenge(ctx, &c, timing, entropy)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(solution{ChallengeID: c.ID, Timing: timing, Entropy: entropy, Counter: counter, Proof: proof})
}
