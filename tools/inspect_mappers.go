package main

import (
	"fmt"
	"log"
	"os"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"gopkg.in/yaml.v3"
)

// Prints the mappers a worker would define for the app in the given base directory
func main() {
	baseDir := "."
	if len(os.Args) > 1 {
		baseDir = os.Args[1]
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		log.Fatal(err)
	}

	store, err := fragments.NewStore(cfg.AppDirectory, cfg.DefaultFileEncoding, cfg.MappingConfig, cfg.AppDBConfig)
	if err != nil {
		log.Fatal(err)
	}
	reader := relations.NewReader(store, cfg.MappingConfig)

	classNames, err := store.Classes()
	if err != nil {
		log.Fatal(err)
	}

	mappers := make(map[string]models.MapperConfig, len(classNames))
	for _, className := range classNames {
		rels, err := reader.Read(className)
		if err != nil {
			log.Printf("%s: relation descriptor ignored: %v", className, err)
			rels = models.NewRelations()
		}
		mappers[className] = models.NewMapperConfig(className, rels)
	}

	out, err := yaml.Marshal(mappers)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("# %d mappers from %s\n", len(mappers), cfg.AppDirectory)
	fmt.Print(string(out))
}
