package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"brainsim/internal/logging"
	"brainsim/pkg/config"
	"brainsim/pkg/synthesis"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "brainsim.yaml", "YAML configuration file")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	maskPath := flag.String("mask", "", "Brain mask volume (.nii or .nii.gz); default is the bundled MNI152 2mm mask")
	outputDir := flag.String("out", "", "Directory for the generated volumes")
	mode := flag.String("mode", "", "What to generate: spheres or gaussian")
	radius := flag.Float64("radius", -1, "Sphere radius in voxels")
	sigma := flag.Float64("sigma", -1, "Noise standard deviation")
	intensities := flag.String("intensities", "", "Comma separated signal intensities, e.g. 0.5,1,2")
	seed := flag.Uint64("seed", 0, "Noise seed (0 keeps the configured seed)")
	numCores := flag.Int("cores", 0, "Number of volumes generated concurrently (default: configured value)")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the configuration file
	if *maskPath != "" {
		cfg.Mask.Path = *maskPath
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *mode != "" {
		cfg.Synthesis.Mode = *mode
	}
	if *radius >= 0 {
		cfg.Synthesis.Radius = *radius
	}
	if *sigma >= 0 {
		cfg.Synthesis.Sigma = *sigma
	}
	if *intensities != "" {
		values, err := parseIntensities(*intensities)
		if err != nil {
			log.Fatalf("Invalid -intensities: %v", err)
		}
		cfg.Synthesis.Intensities = values
	}
	if *seed != 0 {
		cfg.Synthesis.Seed = *seed
	}
	if *numCores > 0 {
		cfg.Synthesis.NumCores = *numCores
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logCfg := &logging.Config{File: cfg.Log.File, MaxSize: cfg.Log.MaxSize, MaxAge: cfg.Log.MaxAge}
	logCfg.SetLogger()
	defer logging.Shutdown()
	if cfg.Output.Verbose {
		logging.SetLogMode(logging.DebugMode)
	}

	fmt.Println("================================")
	fmt.Println("SYNTHETIC BRAIN VOLUME GENERATOR")
	fmt.Println("================================")

	params := &synthesis.Params{
		ResourceDir:  cfg.Mask.ResourceDir,
		OutputDir:    cfg.Output.Dir,
		NumCores:     cfg.Synthesis.NumCores,
		Uncompressed: !cfg.Output.Compress,
		Manifest:     cfg.Output.Manifest,
	}
	if cfg.Mask.Path != "" {
		params.Mask = synthesis.MaskPath(cfg.Mask.Path)
	}

	synth, err := synthesis.NewSynthesizer(params)
	if err != nil {
		log.Fatalf("Failed to initialize synthesizer: %v", err)
	}
	dims := synth.Dims()
	fmt.Printf("Mask dimensions: %v (%d in-mask voxels)\n", dims, synth.Masker().Size())

	startTime := time.Now()
	switch cfg.Synthesis.Mode {
	case "gaussian":
		runGaussian(synth, cfg)
	default:
		runSpheres(synth, cfg)
	}
	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
}

func runSpheres(synth *synthesis.Synthesizer, cfg *config.Config) {
	s := cfg.Synthesis
	fmt.Printf("Generating centered spheres: radius %g, sigma %g, center %v\n",
		s.Radius, s.Sigma, synth.Dims().Center())

	opts := &synthesis.CollectionOptions{
		Intensities: s.Intensities,
		Save:        true,
		Seed:        s.Seed,
	}
	if len(opts.Intensities) == 0 {
		opts.Intensities = nil
	}

	c, err := synth.CollectionOfCenteredSpheres(s.Radius, s.Sigma, opts)
	if err != nil {
		log.Fatalf("Failed to generate collection: %v", err)
	}

	fmt.Printf("\nGenerated %d volumes in %s\n", c.Len(), synth.OutputDir())
	for i, vol := range c.Volumes {
		st, err := synth.Stats(vol.Data)
		if err != nil {
			log.Printf("Warning: Failed to compute stats for volume %d: %v", i, err)
			continue
		}
		fmt.Printf("- [%d] intensity %-8g mean %9.4f  sd %9.4f  %s\n",
			i, c.Intensities[i], st.Mean, st.StdDev, filepath.Base(vol.Path))
	}
	if cfg.Output.Manifest {
		fmt.Printf("Manifest: %s\n", filepath.Join(synth.OutputDir(), synthesis.ManifestFile))
	}
}

func runGaussian(synth *synthesis.Synthesizer, cfg *config.Config) {
	s := cfg.Synthesis
	sigma := [3]float64{s.GaussianSigma[0], s.GaussianSigma[1], s.GaussianSigma[2]}
	fmt.Printf("Generating centered gaussian: sigma %v, total intensity %g\n", sigma, s.TotalIntensity)

	g, err := synth.CenteredGaussian(sigma, s.TotalIntensity)
	if err != nil {
		log.Fatalf("Failed to generate gaussian: %v", err)
	}
	vol, err := synth.ToVolume(g)
	if err != nil {
		log.Fatalf("Failed to build volume: %v", err)
	}

	name := "data_3D.nii.gz"
	if !cfg.Output.Compress {
		name = "data_3D.nii"
	}
	if err := os.MkdirAll(synth.OutputDir(), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	path := filepath.Join(synth.OutputDir(), name)
	if err := synthesis.SaveVolume(vol, path); err != nil {
		log.Fatalf("Failed to save gaussian: %v", err)
	}
	fmt.Printf("Output volume saved to: %s\n", path)
}

// parseIntensities splits a comma separated list of floats
func parseIntensities(s string) ([]float64, error) {
	var values []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
