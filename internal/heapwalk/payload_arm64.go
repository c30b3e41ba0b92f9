//go:build arm64

package heapwalk

// callbackPayload is malloc_iterate's injected callback under AAPCS64:
// x0=base, x1=size, x2=ctx (the ring-buffer page).
//
//	spin:
//	    ldr   x3, [x2, #8]   ; x3 = next_free_idx
//	    ldr   x4, [x2]       ; x4 = max_valid_idx
//	    cmp   x3, x4
//	    b.lo  ok
//	    brk   #0x0           ; buffer full: trap and let the tracer drain it
//	    b     spin
//	ok:
//	    lsl   x5, x3, #3     ; x5 = next_free_idx * 8
//	    add   x6, x2, x5     ; x6 = &data[next_free_idx]
//	    str   x0, [x6]       ; data[next_free_idx]   = base
//	    str   x1, [x6, #8]   ; data[next_free_idx+1] = size
//	    add   x3, x3, #2
//	    str   x3, [x2, #8]   ; data[1] = next_free_idx
//	    ret
var callbackPayload = []byte{
	0x43, 0x04, 0x40, 0xF9, // ldr x3, [x2, #8]
	0x44, 0x00, 0x40, 0xF9, // ldr x4, [x2]
	0x7F, 0x00, 0x04, 0xEB, // cmp x3, x4
	0x63, 0x00, 0x00, 0x54, // b.lo +3 (-> ok)
	0x00, 0x00, 0x20, 0xD4, // brk #0x0
	0xFB, 0xFF, 0xFF, 0x17, // b -5 (-> spin)
	0x65, 0xF0, 0x7D, 0xD3, // lsl x5, x3, #3
	0x46, 0x00, 0x05, 0x8B, // add x6, x2, x5
	0xC0, 0x00, 0x00, 0xF9, // str x0, [x6]
	0xC1, 0x04, 0x00, 0xF9, // str x1, [x6, #8]
	0x63, 0x08, 0x00, 0x91, // add x3, x3, #2
	0x43, 0x04, 0x00, 0xF9, // str x3, [x2, #8]
	0xC0, 0x03, 0x5F, 0xD6, // ret
}
