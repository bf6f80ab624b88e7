// Package message stores and reads message rows, encrypting bodies on the
// way in and decrypting them on the way out.
//
// The message store only ever sees content and a content format; keys stay
// with the e2e service.
package message
