// Package transducer provides sonar.Transducer implementations: a probe
// head attached over a serial link, a synthetic echo simulator and a replay
// of stored recordings.
package transducer
