// Package stream turns an orchestration fragment sequence into incremental
// display updates and hands back the run's terminal response.
package stream
