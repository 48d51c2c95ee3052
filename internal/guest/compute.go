package guest

// Fibonacci returns the n-th Fibonacci number with fib(0) = fib(1) = 1.
//
// The recursion is deliberate: callers use it to load the call stack.
// Results wrap on overflow.
func Fibonacci(n uint32) uint32 {
	switch n {
	case 0, 1:
		return 1
	}
	return Fibonacci(n-1) + Fibonacci(n-2)
}

// ToLowerCase folds ASCII upper-case letters in buf to lower case, in place,
// stopping at the first NUL byte or the end of buf.
func ToLowerCase(buf []byte) {
	for i := 0; i < len(buf) && buf[i] != 0; i++ {
		if c := buf[i]; c >= 'A' && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
	}
}
