package http

var VerifySignature = verifySignature
