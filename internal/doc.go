// Package internal contains the implementation packages of the vei CLI.
//
// # Package Organization
//
//   - scanner: parses the HTML entry document into a template with
//     placeholders and the list of entries it references
//   - plugins: the bundler plugin compositor, shared build state and the
//     built-in stylesheet, raw and worker plugins
//   - build: option normalization, the incremental build session, output
//     mapping and the production build
//   - renderer: fills the template with output URLs and delivers the page
//   - watcher: debounced file watching and change classification
//   - server: the dev loop, dev server and preview server
//   - websocket: the reload hub
//   - config, logging, errors, monitoring, middleware, validation, version:
//     ambient support shared by the packages above
//
// # Data Flow
//
// The scanner output drives a build session. Each build result feeds the
// renderer, which hands the page to a consumer: a file for production, an
// in-memory page for the dev server. In dev mode the watcher classifies
// every change batch against the last result's inputs and the dev loop
// turns it into a reload, an incremental rebuild or a full rebuild.
package internal
