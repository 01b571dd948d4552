package store_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// hostProcessDirs lists the packages that run in the untrusted host process
// (api and worker binaries). None of them may import the enclave-only
// decrypt path or call it by name — decryption of connector refresh
// tokens and assistant session envelopes must only ever happen inside
// internal/enclave, which runs in the TEE.
var hostProcessDirs = []string{
	"../hostapi",
	"../jobs",
}

const forbiddenDecryptSymbol = "DecryptConnectorRefreshToken"
const forbiddenDecryptImport = "alfredhq/backend/internal/enclave/google"

// TestHostProcessNeverCallsDecrypt mirrors the original Rust boundary guard
// test (host_paths_do_not_call_store_decrypt_directly): it source-scans
// every file reachable from the host/worker process packages and fails if
// any of them reference the enclave-only decrypt function, either by
// import path or by call expression.
func TestHostProcessNeverCallsDecrypt(t *testing.T) {
	for _, dir := range hostProcessDirs {
		entries, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			t.Fatalf("globbing %s: %v", dir, err)
		}

		for _, path := range entries {
			if strings.HasSuffix(path, "_test.go") {
				continue
			}

			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
			if err != nil {
				t.Fatalf("parsing %s: %v", path, err)
			}

			for _, imp := range file.Imports {
				if strings.Contains(imp.Path.Value, forbiddenDecryptImport) {
					t.Errorf("%s imports enclave-only decrypt package %s", path, imp.Path.Value)
				}
			}

			ast.Inspect(file, func(n ast.Node) bool {
				sel, ok := n.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				if sel.Sel.Name == forbiddenDecryptSymbol {
					t.Errorf("%s references forbidden symbol %s", path, forbiddenDecryptSymbol)
				}
				return true
			})
		}
	}
}
