// Package location resolves a best-effort geographic fix for a subject.
//
// Resolution tries the live device location, then the network-location API
// of the subject's operator, then a static table of telecom circle centroids.
// Operator detection is a pure function of the number prefix. Every returned
// fix carries its confidence tier.
package location
