package main

// General API documentation for swaggo. Run `swag init -g cmd/riskd/docs.go` to generate docs.
//
// @title           riskd API
// @version         1.0
// @description     Heart-disease risk scoring gateway. Normalizes clinical feature payloads and
// @description     scores them through a remote model service or a local scorer process.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
