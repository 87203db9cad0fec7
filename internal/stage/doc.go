// Package stage defines the contract every pipeline step satisfies.
//
// A stage is a function of the generation request and its predecessor's
// output. It returns an Output carrying exactly one typed result; the
// controller checks that the result belongs to the stage (research notes from
// Research, content from Compose, audio from Voice) before persisting it.
package stage
