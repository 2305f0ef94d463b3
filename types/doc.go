// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package types defines the core data model shared by every reasonmem
// package: chunks and documents (the indexing units), per-channel retrieval
// candidates, fused and reranked results, and the structured error type with
// its unified error codes.
package types
