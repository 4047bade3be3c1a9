// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aarch64

// Instruction encodings, all 64-bit register forms.
// Masks select the fixed opcode bits of each encoding class.
const (
	maskMovWide = 0xFF800000
	instMOVN    = 0x92800000
	instMOVZ    = 0xD2800000
	instMOVK    = 0xF2800000

	maskAddSub = 0xFF800000
	instADDI   = 0x91000000
	instSUBI   = 0xD1000000

	maskOrrReg = 0xFFE0FC00
	instORR    = 0xAA000000

	maskLdSt = 0xFFC00000
	instLDR  = 0xF9400000
	instSTR  = 0xF9000000
	instLDRB = 0x39400000
	instSTRB = 0x39000000

	maskADR = 0x9F000000
	instADR = 0x10000000

	maskB  = 0xFC000000
	instB  = 0x14000000
	instBL = 0x94000000

	maskCB   = 0xFF000000
	instCBZ  = 0xB4000000
	instCBNZ = 0xB5000000

	maskRET = 0xFFFFFC1F
	instRET = 0xD65F0000

	maskSVC = 0xFFE0001F
	instSVC = 0xD4000001

	instNOP = 0xD503201F
)

// sext sign-extends the low n bits of v.
func sext(v uint64, n uint) int64 {
	return int64(v<<(64-n)) >> (64 - n)
}

func (c *CPU) exec(inst uint32) error {
	rd := inst & 31
	rn := (inst >> 5) & 31
	rm := (inst >> 16) & 31

	switch {
	case inst == instNOP:
		// nothing

	case inst&maskSVC == instSVC:
		c.PC += 4
		return ErrSVC

	case inst&maskMovWide == instMOVZ,
		inst&maskMovWide == instMOVN,
		inst&maskMovWide == instMOVK:
		imm := uint64(inst>>5) & 0xFFFF
		hw := uint((inst >> 21) & 3)
		switch inst & maskMovWide {
		case instMOVZ:
			c.xw(rd, imm<<(16*hw))
		case instMOVN:
			c.xw(rd, ^(imm << (16 * hw)))
		case instMOVK:
			v := c.xr(rd)
			v &^= 0xFFFF << (16 * hw)
			c.xw(rd, v|imm<<(16*hw))
		}

	case inst&maskAddSub == instADDI, inst&maskAddSub == instSUBI:
		imm := uint64(inst>>10) & 0xFFF
		if inst>>22&1 != 0 {
			imm <<= 12
		}
		if inst&maskAddSub == instADDI {
			c.spw(rd, c.spr(rn)+imm)
		} else {
			c.spw(rd, c.spr(rn)-imm)
		}

	case inst&maskOrrReg == instORR:
		c.xw(rd, c.xr(rn)|c.xr(rm))

	case inst&maskLdSt == instLDR:
		addr := c.spr(rn) + uint64((inst>>10)&0xFFF)*8
		v, err := c.Mem.ReadX(addr)
		if err != nil {
			return ErrMem
		}
		c.xw(rd, v)

	case inst&maskLdSt == instSTR:
		addr := c.spr(rn) + uint64((inst>>10)&0xFFF)*8
		if err := c.Mem.WriteX(addr, c.xr(rd)); err != nil {
			return ErrMem
		}

	case inst&maskLdSt == instLDRB:
		addr := c.spr(rn) + uint64((inst>>10)&0xFFF)
		v, err := c.Mem.ReadB(addr)
		if err != nil {
			return ErrMem
		}
		c.xw(rd, uint64(v))

	case inst&maskLdSt == instSTRB:
		addr := c.spr(rn) + uint64((inst>>10)&0xFFF)
		if err := c.Mem.WriteB(addr, uint8(c.xr(rd))); err != nil {
			return ErrMem
		}

	case inst&maskADR == instADR:
		immlo := uint64(inst>>29) & 3
		immhi := uint64(inst>>5) & 0x7FFFF
		c.xw(rd, c.PC+uint64(sext(immhi<<2|immlo, 21)))

	case inst&maskB == instB:
		c.PC += uint64(sext(uint64(inst&0x03FFFFFF), 26) * 4)
		return nil

	case inst&maskB == instBL:
		c.xw(30, c.PC+4)
		c.PC += uint64(sext(uint64(inst&0x03FFFFFF), 26) * 4)
		return nil

	case inst&maskCB == instCBZ, inst&maskCB == instCBNZ:
		v := c.xr(rd)
		taken := v == 0
		if inst&maskCB == instCBNZ {
			taken = v != 0
		}
		if taken {
			c.PC += uint64(sext(uint64((inst>>5)&0x7FFFF), 19) * 4)
			return nil
		}

	case inst&maskRET == instRET:
		c.PC = c.xr(rn)
		return nil

	default:
		return ErrInst
	}

	c.PC += 4
	return nil
}
