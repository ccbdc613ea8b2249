// Package models defines the bitkeep entity types: bit types and their
// properties, bits with their data and notes, and collections.
//
// Structured values are what the store manager hands out and what replicas hold:
// every foreign key a client renders (a bit's type) is resolved into a nested value.
package models
