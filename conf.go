package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Output struct {
		Directory      string `toml:"directory"`
		LogDir         string `toml:"logDir"`
		OutputTerminal bool   `toml:"outputTerminal"`
	} `toml:"output"`
	Server struct {
		Addr         string `toml:"addr"`
		ReadTimeout  int    `toml:"readTimeout"`
		WriteTimeout int    `toml:"writeTimeout"`
	} `toml:"server"`
	Corrections struct {
		// Archive is a PMTiles url or local path.
		Archive     string `toml:"archive"`
		MaxFeatures int    `toml:"maxFeatures"`
		// Fallback serves the original tile when corrections fail.
		Fallback bool `toml:"fallback"`
	} `toml:"corrections"`
	Layers struct {
		// File holds extra layer configurations as JSON.
		File string `toml:"file"`
	} `toml:"layers"`
	Upstream struct {
		UserAgent string `toml:"userAgent"`
		Referer   string `toml:"referer"`
		Timeout   int    `toml:"timeout"`
	} `toml:"upstream"`
	Task struct {
		Workers   int `toml:"workers"`
		Timedelay int `toml:"timedelay"`
		BufSize   int `toml:"bufSize"`
	} `toml:"task"`
	BreakPoint struct {
		SaveFilePath string `toml:"saveFilePath"`
	} `toml:"breakPoint"`
	Tm struct {
		Name string `toml:"name"`
		// Layer is the id of the layer configuration to seed.
		Layer  string            `toml:"layer"`
		Format string            `toml:"format"`
		URL    string            `toml:"url"`
		Values map[string]string `toml:"values"`
		Retina bool              `toml:"retina"`
	} `toml:"tm"`
	Lrs []struct {
		Min     int    `toml:"min"`
		Max     int    `toml:"max"`
		Geojson string `toml:"geojson"`
	} `toml:"lrs"`
}

// InitConf reads the toml file; environment variables override it, e.g.
// CORRECTIONS_ARCHIVE for corrections.archive.
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("config file(%s) not exist\n", cfgFile)
		os.Exit(1)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("read config file(%s) error, details: %s\n", viper.ConfigFileUsed(), err)
	}

	viper.SetDefault("app.version", "v0.1.0")
	viper.SetDefault("app.title", "Boundary Tile Fixer")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.readTimeout", 10)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("corrections.maxFeatures", 25000)
	viper.SetDefault("corrections.fallback", true)
	viper.SetDefault("upstream.userAgent", "tilefix/0.1")
	viper.SetDefault("upstream.timeout", 30)
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.timedelay", 0)
	viper.SetDefault("task.bufSize", 64)
	viper.SetDefault("breakPoint.saveFilePath", "breakpoint")
	viper.SetDefault("tm.format", "png")

	// environment only keys are not seen by Unmarshal unless bound
	for _, key := range []string{"corrections.archive", "layers.file", "server.addr", "output.logDir"} {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&conf); err != nil {
		fmt.Printf("parse config file(%s) error, details: %s\n", cfgFile, err)
		os.Exit(1)
	}
}
