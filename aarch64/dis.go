// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aarch64

import "fmt"

// Disasm disassembles the instruction at addr,
// returning its text and the address of the next instruction.
func (c *CPU) Disasm(addr uint64) (string, uint64, error) {
	inst, err := c.Mem.ReadW(addr)
	if err != nil {
		return "", 0, ErrMem
	}
	return disasm(addr, inst), addr + 4, nil
}

func disasm(pc uint64, inst uint32) string {
	rd := RegNum(inst & 31)
	rn := RegNum((inst >> 5) & 31)
	rm := RegNum((inst >> 16) & 31)

	switch {
	case inst == instNOP:
		return "nop"
	case inst&maskSVC == instSVC:
		return fmt.Sprintf("svc %d", inst>>5&0xFFFF)
	case inst&maskMovWide == instMOVZ, inst&maskMovWide == instMOVN, inst&maskMovWide == instMOVK:
		op := map[uint32]string{instMOVZ: "movz", instMOVN: "movn", instMOVK: "movk"}[inst&maskMovWide]
		if hw := inst >> 21 & 3; hw != 0 {
			return fmt.Sprintf("%s %v, %d, lsl %d", op, rd, inst>>5&0xFFFF, 16*hw)
		}
		return fmt.Sprintf("%s %v, %d", op, rd, inst>>5&0xFFFF)
	case inst&maskAddSub == instADDI, inst&maskAddSub == instSUBI:
		op := "add"
		if inst&maskAddSub == instSUBI {
			op = "sub"
		}
		imm := uint64(inst>>10) & 0xFFF
		if inst>>22&1 != 0 {
			imm <<= 12
		}
		return fmt.Sprintf("%s %v, %v, %d", op, rd, rn, imm)
	case inst&maskOrrReg == instORR:
		if rn == ZR {
			return fmt.Sprintf("mov %v, %v", rd, rm)
		}
		return fmt.Sprintf("orr %v, %v, %v", rd, rn, rm)
	case inst&maskLdSt == instLDR:
		return fmt.Sprintf("ldr %v, [%v, %d]", rd, rn, (inst>>10&0xFFF)*8)
	case inst&maskLdSt == instSTR:
		return fmt.Sprintf("str %v, [%v, %d]", rd, rn, (inst>>10&0xFFF)*8)
	case inst&maskLdSt == instLDRB:
		return fmt.Sprintf("ldrb %v, [%v, %d]", rd, rn, inst>>10&0xFFF)
	case inst&maskLdSt == instSTRB:
		return fmt.Sprintf("strb %v, [%v, %d]", rd, rn, inst>>10&0xFFF)
	case inst&maskADR == instADR:
		d := sext(uint64(inst>>5&0x7FFFF)<<2|uint64(inst>>29&3), 21)
		return fmt.Sprintf("adr %v, %#x", rd, uint64(int64(pc)+d))
	case inst&maskB == instB:
		return fmt.Sprintf("b %#x", uint64(int64(pc)+sext(uint64(inst&0x03FFFFFF), 26)*4))
	case inst&maskB == instBL:
		return fmt.Sprintf("bl %#x", uint64(int64(pc)+sext(uint64(inst&0x03FFFFFF), 26)*4))
	case inst&maskCB == instCBZ:
		return fmt.Sprintf("cbz %v, %#x", rd, uint64(int64(pc)+sext(uint64(inst>>5&0x7FFFF), 19)*4))
	case inst&maskCB == instCBNZ:
		return fmt.Sprintf("cbnz %v, %#x", rd, uint64(int64(pc)+sext(uint64(inst>>5&0x7FFFF), 19)*4))
	case inst&maskRET == instRET:
		if rn == 30 {
			return "ret"
		}
		return fmt.Sprintf("ret %v", rn)
	}
	return fmt.Sprintf("??? %#08x", inst)
}
