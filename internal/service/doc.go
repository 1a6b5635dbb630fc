// Package service implements business logic for the dctwin application.
//
// Services coordinate between the HTTP handlers, the CLI and the core
// packages. They own transaction boundaries for reads, translate storage
// failures into internal errors and publish events.
//
// # Services
//
// InventoryService moves and deletes devices through the lifecycle engine,
// lists device history, previews placements and imports or exports site scenes.
//
// AnomalyService diffs verification scans against a site's active devices,
// saves the result insert-only and handles triage updates and xlsx export.
//
// CapacityService searches a site for the best contiguous AI-ready rack block.
//
// # Event System
//
// Services publish events via EventBus. The SSE hub forwards them to browser
// clients and StreamSink appends them to a Redis stream.
package service
