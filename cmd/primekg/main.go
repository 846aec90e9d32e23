// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command primekg serves and queries a PrimeKG knowledge graph index.
//
// Usage:
//
//	primekg init-config                 # write ~/.primekg/primekg.yaml
//	primekg refresh                     # download and build the index
//	primekg serve                       # HTTP API with scheduled refreshes
//	primekg search aspirin --type drug
//	primekg targets Metformin
//	primekg genes "type 2 diabetes mellitus" --limit 20
//	primekg paths Metformin "type 2 diabetes mellitus" --max-length 3
//	primekg details DB00331
//	primekg stats --schema
//	primekg history
//
// Example requests against a running server:
//
//	curl 'http://localhost:8090/v1/primekg/search?q=aspirin&type=drug'
//	curl 'http://localhost:8090/v1/primekg/paths?drug=Metformin&disease=type%202%20diabetes%20mellitus'
//	curl -X POST http://localhost:8090/v1/primekg/refresh
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
