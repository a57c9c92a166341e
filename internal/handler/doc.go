// Package handler is the HTTP surface of lmsbridge.
//
// POST /api/command accepts a host bus command (discoverApis, testApi,
// setCompletion, forceCompletion, getCmiData) as JSON and answers with the
// bus response. Command failures travel inside the response with a 200;
// only malformed requests get a 4xx.
//
// GET /api/reports and GET /api/reports/{id} read the report archive.
// GET /events streams orchestrator events as Server-Sent Events.
//
// Errors are returned as JSON with {error, details}.
package handler
