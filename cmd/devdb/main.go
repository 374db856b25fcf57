package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/devdb"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var baseDir string
	flag.StringVar(&baseDir, "d", ".", "base directory of the app")
	flag.Parse()

	usage := `
Run a MariaDB container for a moka app and point the app at it.

Usage:

devdb [-h] [-f ENV_FILE_PATH] [-d BASE_DIR]

ENV_FILE_PATH: path to the .env file with DB_* settings
BASE_DIR: app base directory, the database-config file is written into its source root

example
  devdb -f /path/to/something/.env -d /path/to/app
`
	// if -h flag print usage and return
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v\n", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	db, err := devdb.Start(nil, devdb.OptionsFromEnv())
	if err != nil {
		log.Fatalf("Failed to start database container: %v\n", err)
	}

	if err := os.MkdirAll(cfg.AppDirectory, 0o755); err != nil {
		db.Terminate()
		log.Fatalf("Failed to create %s: %v\n", cfg.AppDirectory, err)
	}
	if err := db.WriteConfig(cfg.DBConfigPath()); err != nil {
		db.Terminate()
		log.Fatalf("Failed to write database config: %v\n", err)
	}
	log.Printf("Database ready on %s:%s, wrote %s\n", db.Config.Host, db.Config.Port, cfg.DBConfigPath())

	sig := <-sigs
	log.Printf("\nReceived signal: %v, terminating database container...\n", sig)
	db.Terminate()
}
