//go:build amd64

package heapwalk

// callbackPayload is malloc_iterate's injected callback, called as
// callback(void *base /*rdi*/, size_t size /*rsi*/, void *ctx /*rdx*/)
// under the SysV x86_64 ABI. ctx points at the ring-buffer page: a header
// of two 8-byte words (capacity, next-free-index) followed by (base, size)
// pairs. It must never call out to any other function, so control flow is
// built entirely from conditional jumps and a software breakpoint used to
// signal "buffer full" back to the tracer. The trap leaves the saved rip
// on the byte after int3 and the tracer advances it by one more byte
// (internal/remotecall), so a one-byte nop sits between int3 and the jmp.
//
//	spin:
//	    mov   rax, [rdx+8]        ; rax = next_free_idx
//	    mov   rcx, [rdx]          ; rcx = max_valid_idx
//	    cmp   rax, rcx
//	    jb    ok
//	    int3                      ; buffer full: trap and let the tracer drain it
//	    nop                       ; skipped when the tracer resumes
//	    jmp   spin
//	ok:
//	    mov   [rdx+rax*8], rdi    ; data[next_free_idx]   = base
//	    mov   [rdx+rax*8+8], rsi  ; data[next_free_idx+1] = size
//	    add   rax, 2
//	    mov   [rdx+8], rax        ; data[1] = next_free_idx
//	    ret
var callbackPayload = []byte{
	0x48, 0x8B, 0x42, 0x08, // mov rax, [rdx+8]
	0x48, 0x8B, 0x0A, // mov rcx, [rdx]
	0x48, 0x39, 0xC8, // cmp rax, rcx
	0x72, 0x04, // jb +4 (-> ok)
	0xCC,       // int3
	0x90,       // nop (skipped on resume)
	0xEB, 0xF0, // jmp -16 (-> spin)
	0x48, 0x89, 0x3C, 0xC2, // mov [rdx+rax*8], rdi
	0x48, 0x89, 0x74, 0xC2, 0x08, // mov [rdx+rax*8+8], rsi
	0x48, 0x83, 0xC0, 0x02, // add rax, 2
	0x48, 0x89, 0x42, 0x08, // mov [rdx+8], rax
	0xC3, // ret
}
