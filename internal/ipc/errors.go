package ipc

import (
	"errors"
	"regexp"
	"strings"
)

// Storage contract revert errors, identified by the 4-byte selector of the
// custom error signature. The table is pure data, kept as a literal so new
// selectors are a one-line change.
var (
	ErrBucketAlreadyExists        = errors.New("BucketAlreadyExists")
	ErrBucketInvalid              = errors.New("BucketInvalid")
	ErrBucketInvalidOwner         = errors.New("BucketInvalidOwner")
	ErrBucketNonexists            = errors.New("BucketNonexists")
	ErrBucketNonempty             = errors.New("BucketNonempty")
	ErrFileAlreadyExists          = errors.New("FileAlreadyExists")
	ErrFileInvalid                = errors.New("FileInvalid")
	ErrFileNonexists              = errors.New("FileNonexists")
	ErrFileNonempty               = errors.New("FileNonempty")
	ErrFileNameDuplicate          = errors.New("FileNameDuplicate")
	ErrFileFullyUploaded          = errors.New("FileFullyUploaded")
	ErrFileChunkDuplicate         = errors.New("FileChunkDuplicate")
	ErrBlockAlreadyExists         = errors.New("BlockAlreadyExists")
	ErrBlockInvalid               = errors.New("BlockInvalid")
	ErrBlockNonexists             = errors.New("BlockNonexists")
	ErrInvalidArrayLength         = errors.New("InvalidArrayLength")
	ErrInvalidFileBlocksCount     = errors.New("InvalidFileBlocksCount")
	ErrInvalidLastBlockSize       = errors.New("InvalidLastBlockSize")
	ErrInvalidEncodedSize         = errors.New("InvalidEncodedSize")
	ErrInvalidFileCID             = errors.New("InvalidFileCID")
	ErrIndexMismatch              = errors.New("IndexMismatch")
	ErrNoPolicy                   = errors.New("NoPolicy")
	ErrFileNotFilled              = errors.New("FileNotFilled")
	ErrBlockAlreadyFilled         = errors.New("BlockAlreadyFilled")
	ErrChunkCIDMismatch           = errors.New("ChunkCIDMismatch")
	ErrNotBucketOwner             = errors.New("NotBucketOwner")
	ErrBucketNotFound             = errors.New("BucketNotFound")
	ErrFileDoesNotExist           = errors.New("FileDoesNotExist")
	ErrNotThePolicyOwner          = errors.New("NotThePolicyOwner")
	ErrCloneArgumentsTooLong      = errors.New("CloneArgumentsTooLong")
	ErrCreate2EmptyBytecode       = errors.New("Create2EmptyBytecode")
	ErrECDSAInvalidSignatureS     = errors.New("ECDSAInvalidSignatureS")
	ErrECDSAInvalidSignatureLen   = errors.New("ECDSAInvalidSignatureLength")
	ErrECDSAInvalidSignature      = errors.New("ECDSAInvalidSignature")
	ErrAlreadyWhitelisted         = errors.New("AlreadyWhitelisted")
	ErrInvalidContractAddress     = errors.New("InvalidAddress")
	ErrNotWhitelisted             = errors.New("NotWhitelisted")
	ErrMathOverflowedMulDiv       = errors.New("MathOverflowedMulDiv")
	ErrInvalidBlocksAmount        = errors.New("InvalidBlocksAmount")
	ErrInvalidBlockIndex          = errors.New("InvalidBlockIndex")
	ErrLastChunkDuplicate         = errors.New("LastChunkDuplicate")
	ErrFileNotExists              = errors.New("FileNotExists")
	ErrNotSignedByBucketOwner     = errors.New("NotSignedByBucketOwner")
	ErrNonceAlreadyUsed           = errors.New("NonceAlreadyUsed")
	ErrOffsetOutOfBounds          = errors.New("OffsetOutOfBounds")
)

var errorsBySelector = map[string]error{
	"0x497ef2c2": ErrBucketAlreadyExists,
	"0x4f4b202a": ErrBucketInvalid,
	"0xdc64d0ad": ErrBucketInvalidOwner,
	"0x938a92b7": ErrBucketNonexists,
	"0x89fddc00": ErrBucketNonempty,
	"0x6891dde0": ErrFileAlreadyExists,
	"0x77a3cbd8": ErrFileInvalid,
	"0x21584586": ErrFileNonexists,
	"0xc4a3b6f1": ErrFileNonempty,
	"0xd09ec7af": ErrFileNameDuplicate,
	"0xd96b03b1": ErrFileFullyUploaded,
	"0x702cf740": ErrFileChunkDuplicate,
	"0xc1edd16a": ErrBlockAlreadyExists,
	"0xcb20e88c": ErrBlockInvalid,
	"0x15123121": ErrBlockNonexists,
	"0x856b300d": ErrInvalidArrayLength,
	"0x17ec8370": ErrInvalidFileBlocksCount,
	"0x5660ebd2": ErrInvalidLastBlockSize,
	"0x1b6fdfeb": ErrInvalidEncodedSize,
	"0xfe33db92": ErrInvalidFileCID,
	"0x37c7f255": ErrIndexMismatch,
	"0xcefa6b05": ErrNoPolicy,
	"0x5c371e92": ErrFileNotFilled,
	"0xdad01942": ErrBlockAlreadyFilled,
	"0x4b6b8ec8": ErrChunkCIDMismatch,
	"0x0d6b18f0": ErrNotBucketOwner,
	"0xc4c1a0c5": ErrBucketNotFound,
	"0x3bcbb0de": ErrFileDoesNotExist,
	"0xa2c09fea": ErrNotThePolicyOwner,
	"0x94289054": ErrCloneArgumentsTooLong,
	"0x4ca249dc": ErrCreate2EmptyBytecode,
	"0xf3714a9b": ErrECDSAInvalidSignatureS,
	"0x367e2e27": ErrECDSAInvalidSignatureLen,
	"0xf645eedf": ErrECDSAInvalidSignature,
	"0xb73e95e1": ErrAlreadyWhitelisted,
	"0xe6c4247b": ErrInvalidContractAddress,
	"0x584a7938": ErrNotWhitelisted,
	"0x227bc153": ErrMathOverflowedMulDiv,
	"0xe7b199a6": ErrInvalidBlocksAmount,
	"0x59b452ef": ErrInvalidBlockIndex,
	"0x55cbc831": ErrLastChunkDuplicate,
	"0x2abde339": ErrFileNotExists,
	"0x48e0ed68": ErrNotSignedByBucketOwner,
	"0x923b8cbb": ErrNonceAlreadyUsed,
	"0x9605a010": ErrOffsetOutOfBounds,
}

var selectorPattern = regexp.MustCompile(`0x[a-fA-F0-9]{8}`)

// ErrorBySelector returns the named error for a 4-byte selector like
// "0x497ef2c2".
func ErrorBySelector(selector string) (error, bool) {
	err, ok := errorsBySelector[selector]
	return err, ok
}

// ErrorFromRevert maps a revert error to its named equivalent by searching
// the error text for a 4-byte selector. Unknown selectors pass through
// unchanged.
func ErrorFromRevert(err error) error {
	if err == nil {
		return nil
	}
	match := selectorPattern.FindString(err.Error())
	if match == "" {
		return err
	}
	if named, ok := errorsBySelector[strings.ToLower(match)]; ok {
		return named
	}
	return err
}

// IgnoreOffsetError converts an out-of-range offset revert to nil so a
// best-effort read can return an empty result. No other error is ignorable;
// the conversion is explicit, never automatic.
func IgnoreOffsetError(err error) error {
	if errors.Is(ErrorFromRevert(err), ErrOffsetOutOfBounds) {
		return nil
	}
	return err
}
