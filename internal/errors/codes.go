package errors

// Error codes for the gpuc backend
// These codes are used in diagnostics and documentation
// to provide consistent error identification across the toolchain.
//
// Error code ranges:
// E0100-E0199: Text format parse errors
// E0200-E0299: Source program construction errors
// E1000-E1099: Fatal internal backend errors
// E1100-E1199: Context construction errors
// W0001-W0099: Warnings (none defined yet)

const (
	// E0100: Syntax errors in .nir text
	ErrorSyntax = "E0100"

	// E0200: Malformed source program (bad operands, undefined values)
	ErrorBuild = "E0200"

	// E0201: Operation name not in the instruction set
	ErrorUnknownOperation = "E0201"

	// Fatal internal errors (E1001-E1099)

	// E1001: A source value was used before any instruction registered it
	ErrorUndefinedValue = "E1001"

	// E1002: A source value was registered twice
	ErrorDuplicateDefinition = "E1002"

	// E1003: Register access to an array that was never declared
	ErrorUnknownArray = "E1003"

	// E1004: Collected values disagree on half/shared register class
	ErrorRegisterClass = "E1004"

	// E1005: Destination batch opened twice, closed without opening or for another value
	ErrorBatchProtocol = "E1005"

	// E1006: Address register alignment outside 1..4
	ErrorBadAlignment = "E1006"

	// E1007: Array declared with no elements
	ErrorZeroLengthArray = "E1007"

	// E1008: Split reads past the end of a collect
	ErrorCollectBounds = "E1008"

	// E1009: The target lacks an instruction form the program needs
	ErrorMissingCapability = "E1009"

	// E1010: Source instruction the translation does not handle
	ErrorUnsupported = "E1010"

	// E1011: Machine program failed validation after translation
	ErrorInvalidProgram = "E1011"

	// E1099: Any other internal error
	ErrorInternal = "E1099"

	// E1100: Context could not be created
	ErrorAllocation = "E1100"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorSyntax:
		return "The program text does not follow the .nir grammar"
	case ErrorBuild:
		return "The program is syntactically valid but malformed"
	case ErrorUnknownOperation:
		return "Operation is not part of the instruction set"
	case ErrorUndefinedValue:
		return "Value is used before it was produced"
	case ErrorDuplicateDefinition:
		return "Value was produced twice"
	case ErrorUnknownArray:
		return "Register array was never declared"
	case ErrorRegisterClass:
		return "Collected values mix half/full or shared/private registers"
	case ErrorBatchProtocol:
		return "Destination registration protocol violated"
	case ErrorBadAlignment:
		return "Address alignment must be between 1 and 4"
	case ErrorZeroLengthArray:
		return "Register array has no elements"
	case ErrorCollectBounds:
		return "Split reads beyond the collected values"
	case ErrorMissingCapability:
		return "The target generation cannot express this operation"
	case ErrorUnsupported:
		return "Source instruction is not supported by the backend"
	case ErrorInvalidProgram:
		return "Machine program is structurally invalid"
	case ErrorInternal:
		return "Internal backend error"
	case ErrorAllocation:
		return "Compile context could not be created"
	default:
		return "Unknown error code"
	}
}

// IsWarning returns true if the error code represents a warning rather than an error
func IsWarning(code string) bool {
	return code != "" && code[0] == 'W'
}

// IsFatal reports whether the code belongs to the fatal internal range
func IsFatal(code string) bool {
	return code >= "E1000" && code < "E1100"
}

// GetErrorCategory returns the category of the error based on its code
func GetErrorCategory(code string) string {
	switch {
	case code >= "E0100" && code < "E0200":
		return "Parser"
	case code >= "E0200" && code < "E0300":
		return "Program"
	case code >= "E1000" && code < "E1100":
		return "Backend"
	case code >= "E1100" && code < "E1200":
		return "Context"
	case IsWarning(code):
		return "Warning"
	default:
		return "Unknown"
	}
}
