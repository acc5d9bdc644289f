package main

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/paleotronic/rt11m8/loggy"
)

func TestLoadConfigMissing(t *testing.T) {

	os.Setenv("HOME", t.TempDir())

	cfg := loadConfig()
	if cfg.Datastore != nil || cfg.Verbose != nil || cfg.Strict != nil {
		t.Error("Expected empty config when file is missing")
	}

}

func TestLoadConfig(t *testing.T) {

	home := t.TempDir()
	os.Setenv("HOME", home)
	os.MkdirAll(home+"/.rt11m8", 0755)

	data := []byte("datastore: /tmp/prints\nstrict: true\nsimilarity: 0.75\n")
	if err := ioutil.WriteFile(home+"/.rt11m8/config.yml", data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := loadConfig()
	if cfg.Datastore == nil || *cfg.Datastore != "/tmp/prints" {
		t.Error("Datastore not read from config")
	}
	if cfg.Strict == nil || !*cfg.Strict {
		t.Error("Strict not read from config")
	}
	if cfg.Similarity == nil || *cfg.Similarity != 0.75 {
		t.Error("Similarity not read from config")
	}
	if cfg.Verbose != nil {
		t.Error("Verbose should stay unset")
	}

}

func TestLoadConfigMalformed(t *testing.T) {

	home := t.TempDir()
	os.Setenv("HOME", home)
	os.MkdirAll(home+"/.rt11m8", 0755)

	ioutil.WriteFile(home+"/.rt11m8/config.yml", []byte("datastore: [unclosed"), 0644)

	cfg := loadConfig()
	if cfg.Datastore != nil {
		t.Error("Malformed config should yield empty config")
	}

}

func TestApplyConfig(t *testing.T) {

	oldStrict := *strictMode
	oldSim := *similarity
	defer func() {
		*strictMode = oldStrict
		*similarity = oldSim
	}()

	strict := true
	sim := 0.5
	applyConfig(&appConfig{Strict: &strict, Similarity: &sim})

	if !*strictMode {
		t.Error("Strict not applied to flag")
	}
	if *similarity != 0.5 {
		t.Error("Similarity not applied to flag")
	}

}

func TestApplyConfigLogSettings(t *testing.T) {

	oldFolder := loggy.LogFolder
	oldSize := loggy.MaxSizeMB
	oldWorkers := loaderWorkers
	defer func() {
		loggy.LogFolder = oldFolder
		loggy.MaxSizeMB = oldSize
		loaderWorkers = oldWorkers
	}()

	dir := "/tmp/rt11m8-logs"
	size := 25
	workers := 3
	applyConfig(&appConfig{
		Workers: &workers,
		Logs:    &logSettings{Directory: &dir, MaxSizeMB: &size},
	})

	if loggy.LogFolder != dir || loggy.MaxSizeMB != 25 {
		t.Error("Log settings not applied")
	}
	if loaderWorkers != 3 {
		t.Error("Worker count not applied")
	}

}
