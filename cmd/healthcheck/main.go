// main.go
//
// A compile-on-change web application runtime
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of moka.
// moka is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// moka is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with moka.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/logging"
	"github.com/localnerve/moka/internal/services"
	"github.com/localnerve/moka/internal/worker"
)

func main() {
	baseDir := "."
	if len(os.Args) > 1 {
		baseDir = os.Args[1]
	}

	// Load configuration
	cfg, err := config.Load(baseDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Report on stdout, log only problems
	logger, err := logging.New("error")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Build a worker the way the server does, without the watcher
	w, err := worker.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	if err := w.Prepare(ctx); err != nil {
		log.Fatalf("Failed to prepare worker: %v", err)
	}

	// Perform health check
	result := services.HealthCheck(ctx, cfg, w.Registry, logger)
	w.Close()

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}

	fmt.Println(string(output))

	// Exit with appropriate code
	if !result.Healthy() {
		os.Exit(1)
	}
	os.Exit(0)
}
