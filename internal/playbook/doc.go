// Package playbook compiles declarative step graphs into executable plans.
//
// A playbook document has the shape:
//
//	name: recon-lite
//	steps:
//	  - id: whois
//	    impl: whois
//	    params: {timeout: 120}
//	  - id: subfinder
//	    impl: exec
//	edges:
//	  - {from: whois, to: subfinder}
//
// Compile validates the document and returns a Plan whose entry is the
// first declared step. The primary successor of a step is its first
// declared outgoing edge. Steps without an outgoing edge are joined to the
// Terminal marker, so every compiled plan ends; cycles along the primary
// walk are rejected.
package playbook
