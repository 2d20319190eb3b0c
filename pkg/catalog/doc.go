// SPDX-License-Identifier: MPL-2.0

// Package catalog provides recipe catalogs: where the resolver learns which
// versions of a package exist and what each one depends on.
//
// Catalogs can be held in memory, read from a directory of YAML documents,
// or fetched from an HTTP registry that serves JSON documents. Layered
// combines several with first-match precedence. NewFetcher adapts any of them
// to the resolver.
package catalog
