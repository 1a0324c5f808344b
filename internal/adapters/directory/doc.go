// Package directory is a file-backed registry of subjects: their phone numbers
// and emergency contacts. It maps a USSD caller's number to a subject and
// supplies contacts during response initiation.
package directory
