package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/rrcforge/internal/common"
	"example.com/rrcforge/internal/config"
	"example.com/rrcforge/internal/field"
	"example.com/rrcforge/internal/logging"
	"example.com/rrcforge/internal/mutate"
	"example.com/rrcforge/internal/report"
	"example.com/rrcforge/internal/rules"
	"example.com/rrcforge/internal/testcase"
	"example.com/rrcforge/internal/wire"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	if err := logging.Initialize(os.Getenv(logging.LogLevelEnvVar)); err != nil {
		fmt.Fprintf(os.Stderr, "logging init: %v\n", err)
		os.Exit(2)
	}
	defer logging.Sync()
	cmd := os.Args[1]
	switch cmd {
	case "generate":
		generateCmd(os.Args[2:])
	case "classify":
		classifyCmd(os.Args[2:])
	case "diff":
		diffCmd(os.Args[2:])
	case "apply":
		applyCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "pack":
		packCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`rrcforgectl %s (built %s) <command> [options]

Commands:
  generate  --message <fields.json> (--rules <rulepack.json> | --pack <id[@version]>) [--domains <dir>] [--config <config.yaml>] [--out-dir <dir>] [--mode violate|satisfy] [--exhaustive] [--report <run-report.json>]
  classify  --rules <rulepack.json> | --expr <dsl expression>
  diff      --original <hex file> --mutated <hex file> [--out <patch.txt>]
  apply     --in <frame file> --patch <patch.txt>
  report    --run <run-report.json> --pdf <out.pdf>
  batch     --in <dir> --rules <rulepack.json> [--domains <dir>] [--config <config.yaml>] --out-dir <dir>
  pack      install <archive.zip|rulepack.json> | list | remove <id> <version>
`, version, buildDate)
}

func loadEngineConfig(path string) config.Config {
	if strings.TrimSpace(path) == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	return cfg
}

func parseMode(s string) mutate.Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "violate":
		return mutate.Violate
	case "satisfy":
		return mutate.Satisfy
	default:
		fmt.Printf("unknown mode %q (want violate or satisfy)\n", s)
		os.Exit(1)
		return mutate.Violate
	}
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	message := fs.String("message", "", "flattened field list (json)")
	domains := fs.String("domains", "", "per-field domain directory")
	rulesPath := fs.String("rules", "", "rulepack.json")
	installedPack := fs.String("pack", "", "installed rule pack id[@version]")
	configPath := fs.String("config", "", "engine config (yaml)")
	outDir := fs.String("out-dir", "", "test case output directory (overrides config)")
	modeFlag := fs.String("mode", "violate", "mutation target: violate or satisfy")
	exhaustive := fs.Bool("exhaustive", false, "full enumeration for small single-field domains")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "maximum concurrent pair tasks")
	reportPath := fs.String("report", "", "run report output (json)")
	metricsFlag := fs.Bool("metrics", false, "print generation throughput metrics")
	progressFlag := fs.Bool("progress", false, "display generation progress updates")
	fs.Parse(args)

	if *message == "" || (*rulesPath == "" && *installedPack == "") {
		fmt.Println("required: --message and one of --rules or --pack")
		os.Exit(1)
	}

	cfg := loadEngineConfig(*configPath)
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	cfg.Concurrency = *concurrency
	if *exhaustive {
		cfg.Exhaustive = true
	}
	mode := parseMode(*modeFlag)

	pack, err := resolveRulePack(*rulesPath, *installedPack)
	if err != nil {
		fmt.Println("load rule pack:", err)
		os.Exit(1)
	}

	rep, err := runGeneration(*message, *domains, pack, mode, cfg, *metricsFlag || *progressFlag, *progressFlag)
	if err != nil {
		fmt.Println("generate:", err)
		os.Exit(1)
	}

	skippedTotal := 0
	for _, n := range rep.Counters.Skipped {
		skippedTotal += n
	}
	fmt.Printf("Generated %d test case(s) across %d unique pair(s); fields=%d pairs=%d skipped=%d\n",
		rep.Counters.Generated, rep.UniquePairs, rep.Counters.FieldsProcessed, rep.Counters.PairsProcessed, skippedTotal)
	for reason, n := range rep.Counters.Skipped {
		fmt.Printf("  skipped %s: %d\n", reason, n)
	}

	out := *reportPath
	if out == "" {
		out = filepath.Join(cfg.OutDir, "run-report.json")
	}
	if err := report.SaveRunJSON(*rep, out); err != nil {
		fmt.Println("write report:", err)
		os.Exit(1)
	}
	fmt.Println("Run report:", out)
}

func runGeneration(messagePath, domainsPath string, pack rules.RulePack, mode mutate.Mode, cfg config.Config, withMetrics, withProgress bool) (*report.RunReport, error) {
	flat, err := field.ReadFlatFields(messagePath)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	domains := map[int]field.DomainFile{}
	if domainsPath != "" {
		if domains, err = field.ReadDomainDir(domainsPath); err != nil {
			return nil, fmt.Errorf("read domains: %w", err)
		}
	}
	cat, err := field.Load(flat, domains)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var metrics *common.Metrics
	if withMetrics {
		metrics = common.NewMetrics()
	}

	problemsPath := filepath.Join(cfg.OutDir, "problems.ndjson")
	plog := common.NewProblemLog(problemsPath)
	rc := testcase.NewRunContext(logging.L(), plog, metrics)
	asm := testcase.NewAssembler(cfg.OutDir, cfg.AllowsMultiVariant)

	engine := rules.NewEngine(pack, cfg)
	engine.SetMode(mode)
	engine.SetConcurrency(cfg.Concurrency)

	if metrics != nil {
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && withProgress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	runErr := engine.Run(rc, cat, asm)
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}
	if runErr != nil {
		return nil, runErr
	}
	if metrics != nil {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s pairs=%d generated=%d throughput=%.1f pairs/s\n",
			snap.Duration.Round(10*time.Millisecond), snap.Pairs, snap.Generated, snap.PairsPerSecond())
	}

	digest, _, _ := common.Sha256OfFile(messagePath)
	rep := &report.RunReport{
		GeneratedAt: time.Now().UTC(),
		MessageFile: filepath.Base(messagePath),
		InputDigest: digest,
		RulePackID:  pack.RulePackID,
		RuleVersion: pack.Version,
		OutDir:      cfg.OutDir,
		Mode:        modeName(mode),
		Counters:    rc.Summary(),
		UniquePairs: asm.Covered(),
	}
	rep.Problems, _ = common.ReadProblemLog(problemsPath)
	return rep, nil
}

// resolveRulePack loads a pack from an explicit file path or from the
// local repository by id[@version].
func resolveRulePack(rulesPath, installedPack string) (rules.RulePack, error) {
	if rulesPath != "" {
		return rules.LoadRulePack(rulesPath)
	}
	id, version := installedPack, ""
	if at := strings.IndexByte(installedPack, '@'); at >= 0 {
		id, version = installedPack[:at], installedPack[at+1:]
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		return rules.RulePack{}, err
	}
	pack, _, err := repo.Load(id, version)
	return pack, err
}

func packCmd(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: pack install <archive.zip|rulepack.json> | list | remove <id> <version>")
		os.Exit(1)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		fmt.Println("open repository:", err)
		os.Exit(1)
	}
	switch args[0] {
	case "install":
		if len(args) != 2 {
			fmt.Println("usage: pack install <archive.zip|rulepack.json>")
			os.Exit(1)
		}
		var installed rules.InstalledRulePack
		if strings.HasSuffix(args[1], ".zip") {
			installed, err = repo.InstallArchive(args[1])
		} else {
			installed, err = repo.InstallFile(args[1])
		}
		if err != nil {
			fmt.Println("install:", err)
			os.Exit(1)
		}
		fmt.Printf("Installed %s %s (%d rule(s)) to %s\n",
			installed.RulePack.RulePackID, installed.RulePack.Version, len(installed.RulePack.Rules), installed.Dir)
	case "list":
		installed, err := repo.ListInstalled()
		if err != nil {
			fmt.Println("list:", err)
			os.Exit(1)
		}
		if len(installed) == 0 {
			fmt.Println("No rule packs installed.")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVERSION\tRULES\tPATH")
		for _, p := range installed {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.RulePack.RulePackID, p.RulePack.Version, len(p.RulePack.Rules), p.Path)
		}
		w.Flush()
	case "remove":
		if len(args) != 3 {
			fmt.Println("usage: pack remove <id> <version>")
			os.Exit(1)
		}
		if err := repo.Remove(args[1], args[2]); err != nil {
			fmt.Println("remove:", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %s %s\n", args[1], args[2])
	default:
		fmt.Println("usage: pack install <archive.zip|rulepack.json> | list | remove <id> <version>")
		os.Exit(1)
	}
}

func modeName(mode mutate.Mode) string {
	if mode == mutate.Satisfy {
		return "satisfy"
	}
	return "violate"
}

func classifyCmd(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "rulepack.json")
	expr := fs.String("expr", "", "single rule expression")
	fs.Parse(args)

	var items []rules.Rule
	switch {
	case *expr != "":
		items = []rules.Rule{{DSLRule: *expr, HasValidRule: true}}
	case *rulesPath != "":
		pack, err := rules.LoadRulePack(*rulesPath)
		if err != nil {
			fmt.Println("load rule pack:", err)
			os.Exit(1)
		}
		items = pack.Rules
	default:
		fmt.Println("required: --rules or --expr")
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tTYPE\tEXPRESSION\tSTATUS")
	valid, invalid := 0, 0
	for i := range items {
		r := &items[i]
		status := "ok"
		if err := r.Compile(); err != nil {
			status = err.Error()
			invalid++
		} else {
			valid++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.RuleID, r.Type, r.DSLRule, status)
	}
	w.Flush()
	fmt.Printf("%d valid, %d rejected\n", valid, invalid)
	if invalid > 0 {
		os.Exit(1)
	}
}

func diffCmd(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	originalPath := fs.String("original", "", "original payload (hex text)")
	mutatedPath := fs.String("mutated", "", "mutated payload (hex text)")
	out := fs.String("out", "", "patch list output (defaults to stdout)")
	fs.Parse(args)

	if *originalPath == "" || *mutatedPath == "" {
		fmt.Println("required: --original, --mutated")
		os.Exit(1)
	}
	original, err := readHexFile(*originalPath)
	if err != nil {
		fmt.Println("original:", err)
		os.Exit(1)
	}
	mutated, err := readHexFile(*mutatedPath)
	if err != nil {
		fmt.Println("mutated:", err)
		os.Exit(1)
	}
	edits, err := wire.Diff(original, mutated)
	if err != nil {
		fmt.Println("diff:", err)
		os.Exit(1)
	}
	if *out == "" {
		fmt.Print(wire.FormatEdits(edits))
		fmt.Printf("%d byte(s) differ of %d\n", len(edits), len(original))
		return
	}
	if err := wire.WritePatchList(*out, edits); err != nil {
		fmt.Println("write patch list:", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d edit(s) to %s\n", len(edits), *out)
}

func readHexFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return wire.DecodeHex(string(raw))
}

func applyCmd(args []string) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	in := fs.String("in", "", "frame file to patch in place")
	patch := fs.String("patch", "", "patch list file")
	fs.Parse(args)

	if *in == "" || *patch == "" {
		fmt.Println("required: --in, --patch")
		os.Exit(1)
	}
	edits, err := wire.ReadPatchList(*patch)
	if err != nil {
		fmt.Println("read patch list:", err)
		os.Exit(1)
	}
	if err := wire.ApplyFile(*in, edits); err != nil {
		fmt.Println("apply:", err)
		os.Exit(1)
	}
	hash, size, err := common.Sha256OfFile(*in)
	if err != nil {
		fmt.Println("hash:", err)
		os.Exit(1)
	}
	fmt.Printf("Applied %d edit(s) to %s (%d bytes)\n", len(edits), *in, size)
	fmt.Printf("SHA256: %s\n", hash)
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	runPath := fs.String("run", "", "run-report.json")
	pdfPath := fs.String("pdf", "", "output report PDF")
	fs.Parse(args)

	if *runPath == "" {
		fmt.Println("required: --run")
		os.Exit(1)
	}
	rep, err := report.LoadRunJSON(*runPath)
	if err != nil {
		fmt.Println("load run report:", err)
		os.Exit(1)
	}
	if *pdfPath != "" {
		if err := report.SaveRunPDF(rep, *pdfPath); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote PDF:", *pdfPath)
	}
	fmt.Printf("Run %s: %d test case(s), %d unique pair(s), digest %s\n",
		rep.GeneratedAt.Format(time.RFC3339), rep.Counters.Generated, rep.UniquePairs, rep.Digest())
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", "", "directory of flattened field lists")
	domains := fs.String("domains", "", "per-field domain directory")
	rulesPath := fs.String("rules", "", "rulepack.json")
	configPath := fs.String("config", "", "engine config (yaml)")
	outDir := fs.String("out-dir", "", "batch output directory")
	modeFlag := fs.String("mode", "violate", "mutation target: violate or satisfy")
	fs.Parse(args)

	if *inDir == "" || *rulesPath == "" || *outDir == "" {
		fmt.Println("required: --in, --rules, --out-dir")
		os.Exit(1)
	}
	pack, err := rules.LoadRulePack(*rulesPath)
	if err != nil {
		fmt.Println("load rule pack:", err)
		os.Exit(1)
	}
	baseCfg := loadEngineConfig(*configPath)
	mode := parseMode(*modeFlag)

	entries, err := os.ReadDir(*inDir)
	if err != nil {
		fmt.Println("read input dir:", err)
		os.Exit(1)
	}
	processed, failed := 0, 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cfg := baseCfg
		cfg.OutDir = filepath.Join(*outDir, strings.TrimSuffix(name, ".json"))
		rep, err := runGeneration(filepath.Join(*inDir, name), *domains, pack, mode, cfg, false, false)
		if err != nil {
			fmt.Printf("%s: FAILED: %v\n", name, err)
			failed++
			continue
		}
		if err := report.SaveRunJSON(*rep, filepath.Join(cfg.OutDir, "run-report.json")); err != nil {
			fmt.Printf("%s: write report: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("%s: %d test case(s), %d unique pair(s)\n", name, rep.Counters.Generated, rep.UniquePairs)
		processed++
	}
	fmt.Printf("Batch complete: %d processed, %d failed\n", processed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
